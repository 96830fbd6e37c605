package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rlmkit/rlm/chat"
	"github.com/rlmkit/rlm/store"
)

// Pipeline loads document trees into a Store, optionally running entity and
// relationship extraction over each document's pages.
type Pipeline struct {
	transport chat.Transport
}

// New builds a Pipeline over transport, the LLM collaborator entity
// extraction calls go through. transport may be nil if no Ingest call ever
// sets Options.ExtractEntities.
func New(transport chat.Transport) *Pipeline {
	return &Pipeline{transport: transport}
}

// Ingest validates, flattens, and inserts each document into st, optionally
// extracting entities and relationships, then flushes st exactly once.
func (p *Pipeline) Ingest(ctx context.Context, st *store.Store, docs []Document, opts Options) ([]Result, error) {
	opts = opts.withDefaults()

	for i, d := range docs {
		if err := validateDocument(d); err != nil {
			return nil, fmt.Errorf("ingest: document %d: %w", i, err)
		}
	}

	results := make([]Result, len(docs))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)

	for i, d := range docs {
		i, d := i, d
		group.Go(func() error {
			result, err := p.ingestOne(gctx, st, d, opts)
			if err != nil {
				return fmt.Errorf("ingest: document %s: %w", d.ID, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if err := st.Flush(); err != nil {
		return nil, fmt.Errorf("ingest: flush: %w", err)
	}
	return results, nil
}

// validateDocument rejects structurally invalid input before any store
// mutation happens, per spec.md §4.7 step 1.
func validateDocument(d Document) error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("document %s: name is required", d.ID)
	}
	seen := map[int]bool{}
	for _, pg := range d.Pages {
		if seen[pg.Index] {
			return fmt.Errorf("document %s: duplicate page index %d", d.ID, pg.Index)
		}
		seen[pg.Index] = true
		for _, n := range pg.Nodes {
			if n.Content != "" && len(n.ImageBytes) > 0 {
				return fmt.Errorf("document %s page %d: node may not set both content and image bytes", d.ID, pg.Index)
			}
		}
	}
	return nil
}

func (p *Pipeline) ingestOne(ctx context.Context, st *store.Store, d Document, opts Options) (Result, error) {
	result := Result{DocumentID: d.ID}

	if err := p.insertTree(st, d, &result); err != nil {
		return Result{}, err
	}

	if opts.ExtractEntities {
		if err := p.extractAndInsert(ctx, st, d, opts, &result); err != nil {
			result.ExtractionErrors = append(result.ExtractionErrors, err.Error())
		}
	}

	return result, nil
}

// insertTree recursively inserts document -> pages -> nodes -> TOC entries.
func (p *Pipeline) insertTree(st *store.Store, d Document, result *Result) error {
	if err := st.InsertDocument(store.Document{
		ID: d.ID, Name: d.Name, Title: d.Title, Abstract: d.Abstract,
		Extension: d.Extension, Author: d.Author,
	}); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, pg := range d.Pages {
		pageID := uuid.NewString()
		if err := st.InsertPage(store.Page{ID: pageID, DocumentID: d.ID, Index: pg.Index}); err != nil {
			return fmt.Errorf("insert page %d: %w", pg.Index, err)
		}
		result.PagesStored++

		for _, n := range pg.Nodes {
			node := store.PageNode{
				ID: uuid.NewString(), PageID: pageID, DocumentID: d.ID,
				LocalID: n.LocalID, Type: n.Type, ParentID: n.ParentID, Level: n.Level,
				Content: n.Content, ImageBytes: n.ImageBytes, Description: n.Description,
				Continuation: n.Continuation, Caption: n.Caption, Kind: n.Kind,
				BBox: n.BBox, GroupID: n.GroupID,
			}
			if err := st.InsertPageNode(node); err != nil {
				return fmt.Errorf("insert page node %s: %w", n.LocalID, err)
			}
			result.NodesStored++
		}
	}

	for _, e := range d.TocEntries {
		entry := store.TocEntry{
			ID: uuid.NewString(), DocumentID: d.ID, Type: e.Type, ParentID: e.ParentID,
			Title: e.Title, Description: e.Description, TargetPage: e.TargetPage,
			TargetSection: e.TargetSection, Level: e.Level,
		}
		if err := st.InsertTocEntry(entry); err != nil {
			return fmt.Errorf("insert toc entry %q: %w", e.Title, err)
		}
		result.TocEntriesStored++
	}

	return nil
}

// pageExtraction is one page's raw extraction output, collected before the
// two-phase entity/relationship insert runs across the whole document.
type pageExtraction struct {
	pageIndex int
	entities  []ExtractedEntity
	relations []ExtractedRelationship
}

// extractAndInsert partitions each page's nodes into text and visual, runs
// the extraction LLM per page (fanned out on a worker pool, vision calls
// capped per document), then resolves the combined entity/relationship set
// in the required two phases.
func (p *Pipeline) extractAndInsert(ctx context.Context, st *store.Store, d Document, opts Options, result *Result) error {
	pool := workerpool.New(opts.Concurrency)
	defer pool.StopWait()

	var (
		mu             sync.Mutex
		extractions    []pageExtraction
		visionBudget   = opts.MaxVisionRescanNodes
		pagesToProcess = d.Pages
	)
	if opts.MaxExtractionPages > 0 && len(pagesToProcess) > opts.MaxExtractionPages {
		pagesToProcess = pagesToProcess[:opts.MaxExtractionPages]
	}

	// reserveVision claims up to n slots from the document's remaining
	// vision-call budget and reports how many it actually got.
	reserveVision := func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		if n > visionBudget {
			n = visionBudget
		}
		visionBudget -= n
		return n
	}

	var wg sync.WaitGroup
	for _, pg := range pagesToProcess {
		pg := pg
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			text, visual := partitionNodes(pg.Nodes)
			allowedVisionCalls := reserveVision(len(visual))

			ex, err := p.extractPage(ctx, d, pg, text, visual, allowedVisionCalls)

			mu.Lock()
			defer mu.Unlock()
			result.PagesProcessed++
			result.VisualNodesScanned += len(visual)
			if err != nil {
				result.ExtractionErrors = append(result.ExtractionErrors, fmt.Sprintf("page %d: %v", pg.Index, err))
				return
			}
			extractions = append(extractions, ex)
		})
	}
	wg.Wait()

	entities, relationships := flattenExtractions(extractions)
	entityIDs, err := p.insertEntitiesPhaseOne(st, d.ID, entities)
	if err != nil {
		return err
	}
	result.EntitiesExtracted = len(entityIDs)

	inserted := p.insertRelationshipsPhaseTwo(st, d.ID, relationships, entityIDs)
	result.RelationshipsExtracted = inserted

	return nil
}

// partitionNodes splits a page's nodes into text-bearing and visual ones,
// per spec.md §4.7 step 3.
func partitionNodes(nodes []PageNode) (text []PageNode, visual []PageNode) {
	for _, n := range nodes {
		if n.Type.IsVisual() {
			visual = append(visual, n)
		} else if n.Content != "" {
			text = append(text, n)
		}
	}
	return text, visual
}

// extractPage runs one page's extraction call. Text nodes are concatenated
// and truncated to DefaultTextExtractionCharCap; up to allowedVisionCalls of
// the page's visual nodes are included by reference to their image bytes,
// and the rest fall back to description-only text when a budget or image
// bytes are unavailable.
func (p *Pipeline) extractPage(ctx context.Context, d Document, pg Page, text, visual []PageNode, allowedVisionCalls int) (pageExtraction, error) {
	var body strings.Builder
	for _, n := range text {
		body.WriteString(n.Content)
		body.WriteString("\n")
	}
	textContent := body.String()
	if len(textContent) > DefaultTextExtractionCharCap {
		textContent = textContent[:DefaultTextExtractionCharCap]
	}

	var visualContent strings.Builder
	for _, n := range visual {
		if allowedVisionCalls > 0 && len(n.ImageBytes) > 0 {
			visualContent.WriteString(fmt.Sprintf("[image %s]\n", n.LocalID))
			allowedVisionCalls--
		} else if n.Description != "" {
			visualContent.WriteString(fmt.Sprintf("[visual %s, description-only] %s\n", n.LocalID, n.Description))
		}
	}

	out, err := callStructured(ctx, p.transport,
		"Extract named entities and relationships between them from the page "+
			"content below. Entities are parties, obligations, terms, dates, or "+
			"other named things worth cross-referencing. Relationships reference "+
			"entities by the exact name you gave them.",
		fmt.Sprintf("Document: %s, page %d\n\nText:\n%s\n\nVisual:\n%s", d.Name, pg.Index, textContent, visualContent.String()),
		chat.JSONParserAsAnyOf[ExtractionResult]())
	if err != nil {
		return pageExtraction{}, err
	}
	extracted := out.(ExtractionResult)
	return pageExtraction{
		pageIndex: pg.Index,
		entities:  extracted.Entities,
		relations: extracted.Relationships,
	}, nil
}

func callStructured(ctx context.Context, transport chat.Transport, system, user string, parser chat.StructuredParser[any]) (any, error) {
	system = system + "\n\n" + parser.Instructions()
	resp, err := transport.Call(ctx, chat.Request{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: system},
			{Role: chat.RoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, err
	}
	return parser.Parse(resp.Message.Content)
}

// pagedEntity pairs an extracted entity with the page it came from, so
// phase one can attribute the stored entity back to a page.
type pagedEntity struct {
	entity    ExtractedEntity
	pageIndex int
}

func flattenExtractions(extractions []pageExtraction) ([]pagedEntity, []ExtractedRelationship) {
	var entities []pagedEntity
	var relations []ExtractedRelationship
	for _, ex := range extractions {
		for _, e := range ex.entities {
			entities = append(entities, pagedEntity{entity: e, pageIndex: ex.pageIndex})
		}
		relations = append(relations, ex.relations...)
	}
	return entities, relations
}

// insertEntitiesPhaseOne inserts every extracted entity and records a
// case-insensitive name->UUID lookup for phase two to resolve relationship
// endpoints through, per spec.md §4.7 step 3.
func (p *Pipeline) insertEntitiesPhaseOne(st *store.Store, documentID string, entities []pagedEntity) (map[string]string, error) {
	lookup := make(map[string]string, len(entities))
	for _, pe := range entities {
		id := uuid.NewString()
		page := pe.pageIndex
		if err := st.InsertEntity(store.Entity{
			ID: id, Name: pe.entity.Name, Type: pe.entity.Type, Description: pe.entity.Description,
			DocumentID: documentID, Page: &page,
		}); err != nil {
			return nil, fmt.Errorf("insert entity %q: %w", pe.entity.Name, err)
		}
		lookup[strings.ToLower(pe.entity.Name)] = id
	}
	return lookup, nil
}

// insertRelationshipsPhaseTwo resolves each relationship's source/target
// names through lookup and inserts only those that resolve on both ends.
func (p *Pipeline) insertRelationshipsPhaseTwo(st *store.Store, documentID string, relations []ExtractedRelationship, lookup map[string]string) int {
	inserted := 0
	for _, r := range relations {
		sourceID, sourceOK := lookup[strings.ToLower(r.Source)]
		targetID, targetOK := lookup[strings.ToLower(r.Target)]
		if !sourceOK || !targetOK {
			continue
		}
		err := st.InsertRelationship(store.Relationship{
			ID: uuid.NewString(), SourceEntityID: sourceID, TargetEntityID: targetID,
			Type: r.Type, DocumentID: documentID, Description: r.Description,
		})
		if err == nil {
			inserted++
		}
	}
	return inserted
}
