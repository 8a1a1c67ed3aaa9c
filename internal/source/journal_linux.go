//go:build linux && cgo

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"
)

// journalWait bounds each wait so cancellation is noticed.
const journalWait = time.Second

type journalReader struct {
	journal *sdjournal.Journal
}

func openJournal(units []string) (*journalReader, error) {
	journal, err := sdjournal.NewJournal()
	if err != nil {
		return nil, err
	}

	// Filter by units if specified
	for i, unit := range units {
		if i > 0 {
			if err := journal.AddDisjunction(); err != nil {
				journal.Close()
				return nil, fmt.Errorf("adding unit disjunction: %w", err)
			}
		}
		if err := journal.AddMatch("_SYSTEMD_UNIT=" + unit); err != nil {
			journal.Close()
			return nil, fmt.Errorf("adding unit filter %q: %w", unit, err)
		}
	}

	// Seek to the end to only get new entries
	if err := journal.SeekTail(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("seeking to journal tail: %w", err)
	}
	// Move back one entry so we don't miss the first new one
	if _, err := journal.Previous(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("moving to previous entry: %w", err)
	}

	return &journalReader{journal: journal}, nil
}

func (r *journalReader) follow(ctx context.Context, emit func(any)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Wait for new entries
		if status := r.journal.Wait(journalWait); status == sdjournal.SD_JOURNAL_NOP {
			continue
		}

		// Read all available entries
		for {
			n, err := r.journal.Next()
			if err != nil {
				return fmt.Errorf("reading next entry: %w", err)
			}
			if n == 0 {
				break
			}

			entry, err := r.journal.GetEntry()
			if err != nil {
				continue // Skip malformed entries
			}
			emit(entryData(entry.Fields, entry.RealtimeTimestamp))
		}
	}
}

func (r *journalReader) Close() error {
	return r.journal.Close()
}
