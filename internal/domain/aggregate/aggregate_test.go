package aggregate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/memocred/internal/domain/aggregate"
	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

func memo(author string, seq int64, offset time.Duration, text string) model.MemoRecord {
	return model.MemoRecord{Author: author, Sequence: seq, Timestamp: t0.Add(offset), RawText: text}
}

// mockResolver fails every URL listed in failing and counts calls.
type mockResolver struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
}

func (m *mockResolver) Resolve(_ context.Context, url string) model.ResolvedContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[url]++
	if m.failing[url] {
		return model.ResolvedContent{URL: url, Status: model.ContentFailed, Reason: "not_found"}
	}
	return model.ResolvedContent{URL: url, Status: model.ContentOK, Text: "text of " + url}
}

func TestMergeFragments(t *testing.T) {
	Convey("Given consecutive memos of one author", t, func() {
		memos := []model.MemoRecord{
			memo("A1", 1, 0, "part one, "),
			memo("A1", 2, time.Minute, "part two, "),
			memo("A1", 3, 2*time.Minute, "part three"),
		}

		Convey("When merging within the window", func() {
			docs := aggregate.MergeFragments(memos, 10*time.Minute)

			Convey("Then one document should hold the concatenated text", func() {
				So(docs, ShouldHaveLength, 1)
				So(docs[0].Text, ShouldEqual, "part one, part two, part three")
				So(docs[0].Sequences, ShouldResemble, []int64{1, 2, 3})
				So(docs[0].StartedAt, ShouldEqual, t0)
				So(docs[0].EndedAt, ShouldEqual, t0.Add(2*time.Minute))
			})
		})

		Convey("When a gap in time exceeds the window", func() {
			memos[2].Timestamp = t0.Add(time.Hour)
			docs := aggregate.MergeFragments(memos, 10*time.Minute)

			Convey("Then the late fragment should start a new document", func() {
				So(docs, ShouldHaveLength, 2)
				So(docs[0].Sequences, ShouldResemble, []int64{1, 2})
				So(docs[1].Text, ShouldEqual, "part three")
			})

			Convey("And a zero window should only look at adjacency", func() {
				So(aggregate.MergeFragments(memos, 0), ShouldHaveLength, 1)
			})
		})

		Convey("When sequences are not adjacent", func() {
			memos[1].Sequence = 5
			memos[2].Sequence = 6
			docs := aggregate.MergeFragments(memos, 10*time.Minute)

			Convey("Then the gap should split documents", func() {
				So(docs, ShouldHaveLength, 2)
				So(docs[1].Sequences, ShouldResemble, []int64{5, 6})
			})
		})

		Convey("When merging is disabled", func() {
			docs := aggregate.MergeFragments(memos, -1)

			Convey("Then every memo should be its own document", func() {
				So(docs, ShouldHaveLength, 3)
			})
		})

		Convey("When there are no memos", func() {
			Convey("Then there should be no documents", func() {
				So(aggregate.MergeFragments(nil, time.Minute), ShouldBeEmpty)
			})
		})
	})
}

func TestAggregate(t *testing.T) {
	_ = logger.Init()

	Convey("Given an aggregator", t, func() {
		ctx := context.Background()
		a := aggregate.New(aggregate.WithMergeWindow(10*time.Minute), aggregate.WithConcurrency(2))
		r := &mockResolver{failing: map[string]bool{"https://docs.google.com/document/d/gone": true}}

		Convey("When memos of several authors arrive interleaved", func() {
			memos := []model.MemoRecord{
				memo("rB", 4, 3*time.Minute, "later b"),
				memo("rA", 1, 0, "frag 1 "),
				memo("rB", 3, 0, "first b"),
				memo("rA", 2, time.Minute, "frag 2"),
				memo("rC", 9, 0, "solo"),
			}
			bundles := a.Aggregate(ctx, memos, r)

			Convey("Then there should be one bundle per author, sorted", func() {
				So(bundles, ShouldHaveLength, 3)
				So(bundles[0].Author, ShouldEqual, "rA")
				So(bundles[1].Author, ShouldEqual, "rB")
				So(bundles[2].Author, ShouldEqual, "rC")
			})

			Convey("Then memos should be in strictly ascending sequence", func() {
				for _, b := range bundles {
					for i := 1; i < len(b.Memos); i++ {
						So(b.Memos[i].Sequence, ShouldBeGreaterThan, b.Memos[i-1].Sequence)
					}
					for _, m := range b.Memos {
						So(m.Author, ShouldEqual, b.Author)
					}
				}
				So(bundles[1].Memos[0].RawText, ShouldEqual, "first b")
			})
		})

		Convey("When three fragments without links come from one author", func() {
			memos := []model.MemoRecord{
				memo("A1", 1, 0, "alpha "),
				memo("A1", 2, time.Minute, "beta "),
				memo("A1", 3, 2*time.Minute, "gamma"),
			}
			bundles := a.Aggregate(ctx, memos, r)

			Convey("Then one bundle with one merged document and no links should result", func() {
				So(bundles, ShouldHaveLength, 1)
				So(bundles[0].Documents, ShouldHaveLength, 1)
				So(bundles[0].Documents[0].Text, ShouldEqual, "alpha beta gamma")
				So(bundles[0].Links, ShouldBeEmpty)
				So(bundles[0].ResolvedOK(), ShouldEqual, 0)
			})
		})

		Convey("When a link is split across two fragments", func() {
			memos := []model.MemoRecord{
				memo("rA", 1, 0, "read https://docs.google.com/docu"),
				memo("rA", 2, time.Minute, "ment/d/xyz/edit thanks"),
			}
			bundles := a.Aggregate(ctx, memos, r)

			Convey("Then the merged document should recover the full link", func() {
				So(bundles[0].Links, ShouldHaveLength, 1)
				So(bundles[0].Links[0].URL, ShouldEqual, "https://docs.google.com/document/d/xyz")
				So(bundles[0].Links[0].SourceSequence, ShouldEqual, 1)
				So(bundles[0].ResolvedLinks["https://docs.google.com/document/d/xyz"].OK(), ShouldBeTrue)
			})
		})

		Convey("When a memo links a document that fails to fetch", func() {
			memos := []model.MemoRecord{memo("A2", 1, 0, "my thesis https://docs.google.com/document/d/gone")}
			bundles := a.Aggregate(ctx, memos, r)

			Convey("Then the link should be recorded as failed", func() {
				rc := bundles[0].ResolvedLinks["https://docs.google.com/document/d/gone"]
				So(rc.Status, ShouldEqual, model.ContentFailed)
				So(bundles[0].Documents, ShouldHaveLength, 1)
			})
		})

		Convey("When several authors share a link", func() {
			memos := []model.MemoRecord{
				memo("rA", 1, 0, "https://docs.google.com/document/d/shared"),
				memo("rB", 5, 0, "also https://docs.google.com/document/d/shared/view"),
			}
			bundles := a.Aggregate(ctx, memos, r)

			Convey("Then the URL should be resolved once and attached to both", func() {
				So(r.calls["https://docs.google.com/document/d/shared"], ShouldEqual, 1)
				So(bundles[0].ResolvedLinks, ShouldContainKey, "https://docs.google.com/document/d/shared")
				So(bundles[1].ResolvedLinks, ShouldContainKey, "https://docs.google.com/document/d/shared")
			})
		})

		Convey("When there are no memos", func() {
			Convey("Then no bundles should be produced", func() {
				So(a.Aggregate(ctx, nil, r), ShouldBeEmpty)
			})
		})

		Convey("When custom link patterns are configured", func() {
			e, err := links.New(`https://example\.org/n/[0-9]+`)
			So(err, ShouldBeNil)
			custom := aggregate.New(aggregate.WithExtractor(e))
			bundles := custom.Aggregate(ctx, []model.MemoRecord{memo("rA", 1, 0, "see https://example.org/n/42")}, r)

			Convey("Then they should be resolved too", func() {
				So(bundles[0].ResolvedLinks, ShouldContainKey, "https://example.org/n/42")
			})
		})
	})
}
