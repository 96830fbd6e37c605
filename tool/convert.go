package tool

import (
	"github.com/rlmkit/rlm/sandbox"
	"github.com/rlmkit/rlm/store"
)

// The converters below turn store records into sandbox.Value maps by hand,
// field by field, rather than through a reflective marshal: the record set
// is small and fixed, and an explicit converter makes the exact shape the
// LLM sees for each record kind legible at the call site.

func documentValue(d store.Document) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":        sandbox.Str(d.ID),
		"name":      sandbox.Str(d.Name),
		"title":     sandbox.Str(d.Title),
		"abstract":  sandbox.Str(d.Abstract),
		"extension": sandbox.Str(d.Extension),
		"author":    sandbox.Str(d.Author),
	})
}

func pageValue(p store.Page) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":          sandbox.Str(p.ID),
		"document-id": sandbox.Str(p.DocumentID),
		"index":       sandbox.Int(int64(p.Index)),
	})
}

func pageNodeValue(n store.PageNode) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":          sandbox.Str(n.ID),
		"page-id":     sandbox.Str(n.PageID),
		"document-id": sandbox.Str(n.DocumentID),
		"type":        sandbox.Str(string(n.Type)),
		"parent-id":   strPtrOrEmpty(n.ParentID),
		"content":     sandbox.Str(n.Content),
		"description": sandbox.Str(n.Description),
		"caption":     sandbox.Str(n.Caption),
		"has-image":   sandbox.Bool(len(n.ImageBytes) > 0),
	})
}

func tocEntryValue(e store.TocEntry) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":          sandbox.Str(e.ID),
		"document-id": sandbox.Str(e.DocumentID),
		"title":       sandbox.Str(e.Title),
		"description": sandbox.Str(e.Description),
		"target-page": sandbox.Int(int64(e.TargetPage)),
		"level":       sandbox.Int(int64(e.Level)),
		"parent-id":   strPtrOrEmpty(e.ParentID),
	})
}

func entityValue(e store.Entity) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":          sandbox.Str(e.ID),
		"name":        sandbox.Str(e.Name),
		"type":        sandbox.Str(e.Type),
		"description": sandbox.Str(e.Description),
		"document-id": sandbox.Str(e.DocumentID),
		"page":        intPtr(e.Page),
		"section":     sandbox.Str(e.Section),
	})
}

func relationshipValue(r store.Relationship) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":               sandbox.Str(r.ID),
		"source-entity-id": sandbox.Str(r.SourceEntityID),
		"target-entity-id": sandbox.Str(r.TargetEntityID),
		"type":             sandbox.Str(r.Type),
		"document-id":      sandbox.Str(r.DocumentID),
		"description":      sandbox.Str(r.Description),
	})
}

func claimValue(c store.Claim) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":          sandbox.Str(c.ID),
		"text":        sandbox.Str(c.Text),
		"document-id": sandbox.Str(c.DocumentID),
		"confidence":  sandbox.Float(c.Confidence),
		"verified":    sandbox.Bool(c.Verified),
		"verdict":     sandbox.Str(string(c.Verdict)),
	})
}

func learningValue(l store.Learning) sandbox.Value {
	return sandbox.Map(map[string]sandbox.Value{
		"id":               sandbox.Str(l.ID),
		"insight":          sandbox.Str(l.Insight),
		"context":          sandbox.Str(l.Context),
		"useful-count":     sandbox.Int(int64(l.UsefulCount)),
		"not-useful-count": sandbox.Int(int64(l.NotUsefulCount)),
		"applied-count":    sandbox.Int(int64(l.AppliedCount)),
		"decayed?":         sandbox.Bool(l.Decayed()),
	})
}

func statsValue(s store.Stats) sandbox.Value {
	typeCounts := make(map[string]sandbox.Value, len(s.TypeCounts))
	for k, v := range s.TypeCounts {
		typeCounts[k] = sandbox.Int(int64(v))
	}
	return sandbox.Map(map[string]sandbox.Value{
		"type-counts":       sandbox.Map(typeCounts),
		"total-votes":       sandbox.Int(int64(s.TotalVotes)),
		"total-applied":     sandbox.Int(int64(s.TotalApplied)),
		"decayed-learnings": sandbox.Int(int64(s.DecayedLearnings)),
	})
}

func vectorOf[T any](items []T, conv func(T) sandbox.Value) sandbox.Value {
	out := make([]sandbox.Value, len(items))
	for i, it := range items {
		out[i] = conv(it)
	}
	return sandbox.Vector(out...)
}
