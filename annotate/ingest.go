package annotate

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/beritholmen/konkord/segment"
)

// Ingestor drives annotation of a source file into the segment store.
//
// Ingestion is explicitly triggered and idempotent: a file already in the
// store is skipped unless forced, because re-annotation dominates cost
// (minutes for a book-length file). Nothing is committed unless every
// paragraph annotated successfully.
type Ingestor struct {
	annotator Annotator
	logger    *slog.Logger

	// Parallelism bounds concurrent annotator calls per ingestion.
	Parallelism int

	// Progress, if set, is called after each annotated paragraph.
	Progress func(done, total int)
}

// NewIngestor creates an Ingestor over the given annotator.
func NewIngestor(annotator Annotator, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		annotator:   annotator,
		logger:      logger,
		Parallelism: 4,
	}
}

// Ingest annotates rawText and commits the resulting segments to the
// store as fileID's complete segment range. It returns the segments now
// stored for fileID.
//
// If the file was ingested before and force is false, the stored segments
// are returned unchanged. On annotator failure it returns an
// *UnavailableError and the store is untouched.
func (ing *Ingestor) Ingest(ctx context.Context, store *segment.Store, fileID, rawText string, force bool) ([]segment.Segment, error) {
	if store.HasFile(fileID) && !force {
		ing.logger.Info("file already ingested, skipping", "file", fileID)
		return fileSegments(store, fileID), nil
	}

	paragraphs := SplitParagraphs(rawText)
	total := len(paragraphs)
	ing.logger.Info("ingesting file", "file", fileID, "paragraphs", total, "lang", ing.annotator.Language())

	// Annotate every paragraph before committing anything: a failure
	// anywhere aborts the whole ingestion.
	annotated := make([][]Sentence, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	limit := ing.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, para := range paragraphs {
		i, para := i, para
		g.Go(func() error {
			sentences, err := ing.annotator.Annotate(gctx, para)
			if err != nil {
				return err
			}
			annotated[i] = sentences
			if ing.Progress != nil {
				ing.Progress(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ing.logger.Error("annotation failed, nothing committed", "file", fileID, "error", err)
		return nil, &UnavailableError{Language: ing.annotator.Language(), cause: err}
	}

	var segs []segment.Segment
	for _, sentences := range annotated {
		for i, sent := range sentences {
			segs = append(segs, segment.Segment{
				FileID:       fileID,
				Source:       sent.Text,
				Tokens:       NormalizeTokens(sent.Tokens),
				ParagraphEnd: i == len(sentences)-1,
			})
		}
	}

	if err := store.ReplaceFileSegments(fileID, segs); err != nil {
		return nil, err
	}

	ing.logger.Info("ingestion committed", "file", fileID, "segments", len(segs))
	return fileSegments(store, fileID), nil
}

func fileSegments(store *segment.Store, fileID string) []segment.Segment {
	var out []segment.Segment
	for _, seg := range store.Segments() {
		if seg.FileID == fileID {
			out = append(out, seg)
		}
	}
	return out
}
