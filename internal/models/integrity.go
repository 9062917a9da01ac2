// internal/models/integrity.go
package models

import "sort"

// IssueKind 完整性问题类别
type IssueKind string

const (
	IssueDanglingSequenceEntry IssueKind = "dangling_sequence_entry"
	IssueDanglingTarget        IssueKind = "dangling_hotspot_target"
	IssueKeyMismatch           IssueKind = "content_key_mismatch"
)

// IntegrityIssue 悬空引用等警告，不会阻止加载或导航
type IntegrityIssue struct {
	Kind       IssueKind `json:"kind"`
	SequenceID string    `json:"sequenceId,omitempty"`
	ContentID  string    `json:"contentId,omitempty"`
	HotspotID  string    `json:"hotspotId,omitempty"`
	Ref        string    `json:"ref"`
	Position   int       `json:"position,omitempty"`
}

// CheckIntegrity 报告悬空的序列条目和热点目标
func (d *Document) CheckIntegrity() []IntegrityIssue {
	var issues []IntegrityIssue
	for _, seq := range d.Sequences {
		for pos, id := range seq.Contents {
			if !d.HasContent(id) {
				issues = append(issues, IntegrityIssue{
					Kind:       IssueDanglingSequenceEntry,
					SequenceID: seq.ID,
					Ref:        id,
					Position:   pos,
				})
			}
		}
	}

	ids := make([]string, 0, len(d.Contents))
	for id := range d.Contents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := d.Contents[id]
		if c.ID != id {
			issues = append(issues, IntegrityIssue{Kind: IssueKeyMismatch, ContentID: id, Ref: c.ID})
		}
		for _, h := range c.Hotspots {
			if h.Action != ActionRoute || h.Target == "" {
				continue
			}
			if !d.HasContent(h.Target) {
				issues = append(issues, IntegrityIssue{
					Kind:      IssueDanglingTarget,
					ContentID: id,
					HotspotID: h.ID,
					Ref:       h.Target,
				})
			}
		}
	}
	return issues
}
