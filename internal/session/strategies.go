package session

import (
	"context"
	"fmt"

	"jordanella.com/scrollcap/internal/convergence"
	"jordanella.com/scrollcap/internal/sink"
	"jordanella.com/scrollcap/internal/uitree"
)

const (
	previewLines = 3
	previewRunes = 50
)

// imageStrategy captures raw frames and stops when their byte size repeats.
type imageStrategy struct {
	s         *Session
	sink      *sink.ImageSink
	detector  *convergence.SizeDetector
	artifacts []string
}

func (m *imageStrategy) capture(ctx context.Context, page int) (Observation, convergence.Decision) {
	log := m.s.log
	obs := Observation{Index: page}

	data, err := m.s.device.CaptureFrame(ctx)
	if err != nil {
		obs.Failed = true
		log.ErrorWithContext("Capture failed", err, map[string]interface{}{"page": page})
	} else {
		obs.Size = int64(len(data))
	}

	decision := m.detector.Observe(obs.Size)
	if decision == convergence.Converged {
		obs.Duplicate = true
		log.InfoWithContext("Screen unchanged; discarding duplicate capture", map[string]interface{}{
			"page":  page,
			"bytes": obs.Size,
		})
		return obs, decision
	}
	if m.detector.Streak() > 0 {
		log.InfoWithContext("Screen unchanged since last capture", map[string]interface{}{
			"page":   page,
			"streak": m.detector.Streak(),
		})
	}

	if obs.Failed {
		return obs, decision
	}

	path, err := m.sink.Write(page, data, m.s.now())
	if err != nil {
		log.ErrorWithContext("Failed to persist page; continuing", err, map[string]interface{}{"page": page})
		return obs, decision
	}
	obs.Artifact = path
	m.artifacts = append(m.artifacts, path)

	log.InfoWithContext("Page captured", map[string]interface{}{
		"page":  page,
		"bytes": obs.Size,
		"file":  path,
	})
	return obs, decision
}

func (m *imageStrategy) signature(obs Observation) (string, int) {
	return fmt.Sprintf("size=%d", obs.Size), 0
}

func (m *imageStrategy) finish(sum *Summary) {
	sum.Artifacts = append([]string(nil), m.artifacts...)
}

// textStrategy dumps the UI tree and stops when pages stop adding lines.
type textStrategy struct {
	s        *Session
	sink     *sink.TextSink
	detector *convergence.TextDetector
}

func (m *textStrategy) capture(ctx context.Context, page int) (Observation, convergence.Decision) {
	log := m.s.log
	obs := Observation{Index: page}

	data, err := m.s.device.DumpUITree(ctx)
	if err != nil {
		obs.Failed = true
		log.ErrorWithContext("UI dump failed", err, map[string]interface{}{"page": page})
	} else {
		if m.s.cfg.KeepDumps {
			if _, err := m.sink.WriteDump(page, data); err != nil {
				log.ErrorWithContext("Failed to keep ui dump", err, map[string]interface{}{"page": page})
			}
		}

		lines, err := uitree.ExtractTexts(data)
		if err != nil {
			obs.Failed = true
			log.WarnWithContext("Unparseable ui dump; treating page as empty", map[string]interface{}{
				"page":  page,
				"error": err.Error(),
			})
		}
		obs.Lines = lines
	}

	added, decision := m.detector.Observe(obs.Lines)
	obs.NewLines = added

	log.InfoWithContext("Page extracted", map[string]interface{}{
		"page":  page,
		"new":   len(added),
		"total": m.detector.Len(),
	})
	for i, line := range added {
		if i == previewLines {
			break
		}
		log.InfoWithContext("New text", map[string]interface{}{"n": i + 1, "text": preview(line)})
	}
	if len(added) == 0 {
		log.InfoWithContext("No new text on this page", map[string]interface{}{
			"page":   page,
			"streak": m.detector.Streak(),
		})
	}

	return obs, decision
}

func (m *textStrategy) signature(obs Observation) (string, int) {
	return fmt.Sprintf("new=%d", len(obs.NewLines)), len(obs.NewLines)
}

func (m *textStrategy) finish(sum *Summary) {
	lines := m.detector.Lines()
	sum.Lines = len(lines)

	path, err := m.sink.Write(lines)
	if err != nil {
		m.s.log.Error("Failed to write text list", err)
		return
	}
	sum.TextFile = path
}

// preview shortens a line for log output.
func preview(line string) string {
	runes := []rune(line)
	if len(runes) <= previewRunes {
		return line
	}
	return string(runes[:previewRunes]) + "..."
}
