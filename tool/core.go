package tool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
)

// CoreTools builds the fixed second tier of spec.md §4.3: the functions
// bound by the engine over the Store and the environment's recursion/locals
// context. recursor and locals may be nil (e.g. a sub-agent's simplified
// loop does not expose llm-query/rlm-query further, per §9's "only core
// bindings propagate to sub-agents" decision). With a nil recursor,
// llm-query and rlm-query return an error; with nil locals, FINAL-VAR
// returns an error, list-locals returns an empty vector and get-local nil.
func CoreTools(st *store.Store, locals LocalsProvider, recursor Recursor) []Tool {
	var tools []Tool

	def := func(name string) *Definition {
		return NewDefinitionBuilder().WithName(name).WithAutoDescription().MustBuild()
	}
	add := func(name string, fn func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error)) {
		tools = append(tools, NewFuncTool(def(name), fn))
	}

	// --- insert-* : upsert by identifier, id generated if absent --------

	add("insert-document", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		d := store.Document{
			ID:        idOrNew(m),
			Name:      optString(m, "name"),
			Title:     optString(m, "title"),
			Abstract:  optString(m, "abstract"),
			Extension: optString(m, "extension"),
			Author:    optString(m, "author"),
		}
		if err := st.InsertDocument(d); err != nil {
			return sandbox.Nil, err
		}
		return documentValue(d), nil
	})

	add("insert-page", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		p := store.Page{
			ID:         idOrNew(m),
			DocumentID: optString(m, "document-id"),
			Index:      optInt(m, "index", 0),
		}
		if err := st.InsertPage(p); err != nil {
			return sandbox.Nil, err
		}
		return pageValue(p), nil
	})

	add("insert-page-node", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		n := store.PageNode{
			ID:          idOrNew(m),
			PageID:      optString(m, "page-id"),
			DocumentID:  optString(m, "document-id"),
			Type:        store.PageNodeType(optString(m, "type")),
			ParentID:    optString(m, "parent-id"),
			Content:     optString(m, "content"),
			Description: optString(m, "description"),
			Caption:     optString(m, "caption"),
		}
		if err := st.InsertPageNode(n); err != nil {
			return sandbox.Nil, err
		}
		return pageNodeValue(n), nil
	})

	add("insert-toc-entry", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		e := store.TocEntry{
			ID:          idOrNew(m),
			DocumentID:  optString(m, "document-id"),
			Title:       optString(m, "title"),
			Description: optString(m, "description"),
			TargetPage:  optInt(m, "target-page", 0),
			Level:       optInt(m, "level", 0),
			ParentID:    optString(m, "parent-id"),
		}
		if err := st.InsertTocEntry(e); err != nil {
			return sandbox.Nil, err
		}
		return tocEntryValue(e), nil
	})

	add("insert-entity", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		e := store.Entity{
			ID:          idOrNew(m),
			Name:        optString(m, "name"),
			Type:        optString(m, "type"),
			Description: optString(m, "description"),
			DocumentID:  optString(m, "document-id"),
			Section:     optString(m, "section"),
		}
		if err := st.InsertEntity(e); err != nil {
			return sandbox.Nil, err
		}
		return entityValue(e), nil
	})

	add("insert-relationship", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		r := store.Relationship{
			ID:             idOrNew(m),
			SourceEntityID: optString(m, "source-entity-id"),
			TargetEntityID: optString(m, "target-entity-id"),
			Type:           optString(m, "type"),
			DocumentID:     optString(m, "document-id"),
			Description:    optString(m, "description"),
		}
		if err := st.InsertRelationship(r); err != nil {
			return sandbox.Nil, err
		}
		return relationshipValue(r), nil
	})

	add("insert-claim", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		c := store.Claim{
			ID:         idOrNew(m),
			Text:       optString(m, "text"),
			DocumentID: optString(m, "document-id"),
			Confidence: optFloat(m, "confidence", 0),
		}
		if err := st.InsertClaim(c); err != nil {
			return sandbox.Nil, err
		}
		return claimValue(c), nil
	})

	add("insert-message", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		msg := store.Message{
			ID:        idOrNew(m),
			Role:      store.MessageRole(optString(m, "role")),
			Content:   optString(m, "content"),
			Iteration: optInt(m, "iteration", 0),
		}
		if err := st.InsertMessage(msg); err != nil {
			return sandbox.Nil, err
		}
		return sandbox.Str(msg.ID), nil
	})

	add("insert-learning", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		m := optMap(args, 0)
		l := store.Learning{
			ID:      idOrNew(m),
			Insight: optString(m, "insight"),
			Context: optString(m, "context"),
		}
		if err := st.InsertLearning(l); err != nil {
			return sandbox.Nil, err
		}
		return learningValue(l), nil
	})

	// --- search-*/list-* : query? then degrade to list, per §4.1 --------

	add("search-page-nodes", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		q, _ := argString(args, 0)
		f := listFilterFromOpts(optMap(args, 1))
		return vectorOf(st.SearchPageNodes(q, f), pageNodeValue), nil
	})

	add("search-toc-entries", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		q, _ := argString(args, 0)
		f := listFilterFromOpts(optMap(args, 1))
		return vectorOf(st.SearchTocEntries(q, f), tocEntryValue), nil
	})

	add("search-entities", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		q, _ := argString(args, 0)
		f := listFilterFromOpts(optMap(args, 1))
		return vectorOf(st.SearchEntities(q, f), entityValue), nil
	})

	add("search-claims", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		f := listFilterFromOpts(optMap(args, 0))
		return vectorOf(st.SearchClaims(f), claimValue), nil
	})

	add("search-learnings", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		q, _ := argString(args, 0)
		opts := optMap(args, 1)
		f := listFilterFromOpts(opts)
		includeDecayed := optBool(opts, "include-decayed?")
		return vectorOf(st.SearchLearnings(q, f, includeDecayed), learningValue), nil
	})

	add("list-documents", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		f := listFilterFromOpts(optMap(args, 0))
		return vectorOf(st.ListDocuments(f), documentValue), nil
	})

	add("list-relationships-by-entity", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		opts := optMap(args, 1)
		limit := optInt(opts, "limit", 0)
		return vectorOf(st.ListRelationshipsByEntity(id, limit), relationshipValue), nil
	})

	// --- get-by-id, one tool per entity kind -----------------------------

	add("get-document", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		d, ok := st.GetDocumentByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return documentValue(d), nil
	})
	add("get-page", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		p, ok := st.GetPageByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return pageValue(p), nil
	})
	add("get-page-node", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		n, ok := st.GetPageNodeByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return pageNodeValue(n), nil
	})
	add("get-toc-entry", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		e, ok := st.GetTocEntryByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return tocEntryValue(e), nil
	})
	add("get-entity", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		e, ok := st.GetEntityByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return entityValue(e), nil
	})
	add("get-relationship", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		r, ok := st.GetRelationshipByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return relationshipValue(r), nil
	})
	add("get-claim", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		c, ok := st.GetClaimByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return claimValue(c), nil
	})
	add("get-learning", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		l, ok := st.GetLearningByID(id)
		if !ok {
			return sandbox.Nil, nil
		}
		return learningValue(l), nil
	})

	// --- learning feedback loop, stats -----------------------------------

	add("vote-learning", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		id, _ := argString(args, 0)
		voteStr, _ := argString(args, 1)
		vote := store.Vote(voteStr)
		l, err := st.VoteLearning(id, vote)
		if err != nil {
			return sandbox.Nil, err
		}
		return learningValue(l), nil
	})

	add("stats", func(_ context.Context, _ []sandbox.Value) (sandbox.Value, error) {
		return statsValue(st.Stats()), nil
	})

	// --- locals introspection --------------------------------------------

	add("list-locals", func(_ context.Context, _ []sandbox.Value) (sandbox.Value, error) {
		if locals == nil {
			return sandbox.Vector(), nil
		}
		names := make([]sandbox.Value, 0, len(locals.Locals()))
		for name := range locals.Locals() {
			names = append(names, sandbox.Str(name))
		}
		return sandbox.Vector(names...), nil
	})

	add("get-local", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		name, _ := argString(args, 0)
		if locals == nil {
			return sandbox.Nil, nil
		}
		v, ok := locals.Locals()[name]
		if !ok {
			return sandbox.Nil, nil
		}
		return v, nil
	})

	// --- termination sentinel ---------------------------------------------

	add("FINAL", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		return finalRecord(argAt(args, 0)), nil
	})

	add("FINAL-VAR", func(_ context.Context, args []sandbox.Value) (sandbox.Value, error) {
		name, _ := argString(args, 0)
		if locals == nil {
			return sandbox.Nil, fmt.Errorf("tool: FINAL-VAR: no locals available")
		}
		v, ok := locals.Locals()[name]
		if !ok {
			return sandbox.Nil, fmt.Errorf("tool: FINAL-VAR: unknown local %q", name)
		}
		return finalRecord(v), nil
	})

	// --- recursion: llm-query / rlm-query ---------------------------------

	add("llm-query", func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error) {
		if recursor == nil {
			return sandbox.Nil, fmt.Errorf("tool: llm-query: recursion not available in this context")
		}
		prompt, _ := argString(args, 0)
		spec := optString(optMap(args, 1), "spec")
		text, err := recursor.LLMQuery(ctx, prompt, spec)
		if err != nil {
			return sandbox.Nil, err
		}
		return sandbox.Str(text), nil
	})

	add("rlm-query", func(ctx context.Context, args []sandbox.Value) (sandbox.Value, error) {
		if recursor == nil {
			return sandbox.Nil, fmt.Errorf("tool: rlm-query: recursion not available in this context")
		}
		docContext, _ := argString(args, 0)
		query, _ := argString(args, 1)
		opts := optMap(args, 2)
		spec := optString(opts, "spec")
		maxIterations := optInt(opts, "max-iterations", 10)
		result, err := recursor.RLMQuery(ctx, docContext, query, spec, maxIterations)
		if err != nil {
			return sandbox.Nil, err
		}
		return sandbox.FromNative(result), nil
	})

	return tools
}

// idOrNew returns the "id" field of an options map if present and non-empty,
// otherwise mints a fresh one — every insert-* tool is an upsert keyed on
// identifier, so letting the LLM omit the id is the common case.
func idOrNew(m map[string]sandbox.Value) string {
	if m != nil {
		if id := optString(m, "id"); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// finalRecord builds the tagged FINAL sentinel described in spec.md §4.3:
// {final?: true, answer: {result, type}}.
func finalRecord(v sandbox.Value) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"final?": sandbox.Bool(true),
		"answer": sandbox.Map(map[string]sandbox.Value{
			"result": v,
			"type":   sandbox.Str(v.Kind.String()),
		}),
	})
}

// IsFinal reports whether v is a FINAL-tagged record, for the iteration
// engine's termination check (spec.md §4.5 "final detection via result").
func IsFinal(v sandbox.Value) (sandbox.Value, bool) {
	if v.Kind != sandbox.KindMap {
		return sandbox.Nil, false
	}
	tag, ok := v.Map["final?"]
	if !ok || !tag.Truthy() {
		return sandbox.Nil, false
	}
	answer, ok := v.Map["answer"]
	if !ok {
		return sandbox.Nil, false
	}
	result, ok := answer.Map["result"]
	if !ok {
		return sandbox.Nil, false
	}
	return result, true
}
