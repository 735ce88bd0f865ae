package main

import (
	"fmt"

	"github.com/Brownie44l1/classbench/internal/bench"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/cheggaaa/pb/v3"
)

const barTemplate pb.ProgressBarTemplate = `{{counters . }} {{bar . }} {{percent . }} {{string . "stats"}}`

// progressBar renders benchmark progress on stderr.
type progressBar struct {
	bar     *pb.ProgressBar
	labels  model.LabelTable
	verbose bool
}

func newProgressBar(total int, labels model.LabelTable, verbose bool) *progressBar {
	return &progressBar{bar: barTemplate.Start(total), labels: labels, verbose: verbose}
}

func (p *progressBar) Progress(pr bench.Progress) {
	acc := "--"
	if pr.Running.HasAccuracy {
		acc = fmt.Sprintf("%.1f%%", pr.Running.Accuracy)
	}
	p.bar.Set("stats", fmt.Sprintf("acc %s  %.0fms  conf %.1f%%", acc, pr.Running.MeanLatencyMS, pr.Running.MeanConfidence))
	p.bar.SetCurrent(int64(pr.Processed))

	if p.verbose {
		it := pr.Item
		switch {
		case it.Skipped():
			fmt.Printf("\n%-20s skipped: %v", it.Name, it.Err)
		case !it.Labeled():
			fmt.Printf("\n%-20s -  %s %.1f%%", it.Name, p.labels.Name(it.Predicted), 100*it.Confidence)
		default:
			mark := "x"
			if it.Correct {
				mark = "ok"
			}
			fmt.Printf("\n%-20s %-2s %s -> %s %.1f%%", it.Name, mark, p.labels.Name(it.Label), p.labels.Name(it.Predicted), 100*it.Confidence)
		}
	}
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}
