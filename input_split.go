package zonecount

import (
	"bufio"
	"sort"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// inputSplit contains the information about a contiguous chunk of an input file.
// startOffset and endOffset are inclusive. For example, if the startOffset was 10
// and the endOffset was 14, then the inputSplit would describe a 5 byte chunk
// of the file.
type inputSplit struct {
	Filename    string `json:"filename"`
	StartOffset int64  `json:"startOffset"`
	EndOffset   int64  `json:"endOffset"`
}

// Size returns the number of bytes that the inputSplit spans.
func (i inputSplit) Size() int64 {
	return i.EndOffset - i.StartOffset + 1
}

// splitInputFile calculates the inputSplits for an input file.
func splitInputFile(file corfs.FileInfo, maxSplitSize int64) []inputSplit {
	splits := make([]inputSplit, 0)

	for startOffset := int64(0); startOffset < file.Size; startOffset += maxSplitSize {
		endOffset := startOffset + maxSplitSize - 1
		if endOffset >= file.Size {
			endOffset = file.Size - 1
		}
		splits = append(splits, inputSplit{
			Filename:    file.Name,
			StartOffset: startOffset,
			EndOffset:   endOffset,
		})
	}

	return splits
}

// inputBin is a collection of inputSplits processed by one map task.
type inputBin struct {
	splits []inputSplit
	size   int64
}

// packInputSplits partitions inputSplits into bins.
// The combined size of each bin will be no greater than maxBinSize,
// unless a single split is larger than maxBinSize.
func packInputSplits(splits []inputSplit, maxBinSize int64) [][]inputSplit {
	if len(splits) == 0 {
		return [][]inputSplit{}
	}

	sorted := make([]inputSplit, len(splits))
	copy(sorted, splits)
	// Sort splits by size, largest first (first fit decreasing)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size() > sorted[j].Size()
	})

	bins := make([]*inputBin, 0)
	for _, split := range sorted {
		placed := false
		for _, bin := range bins {
			if bin.size+split.Size() <= maxBinSize {
				bin.splits = append(bin.splits, split)
				bin.size += split.Size()
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, &inputBin{
				splits: []inputSplit{split},
				size:   split.Size(),
			})
		}
	}

	binnedSplits := make([][]inputSplit, len(bins))
	for i, bin := range bins {
		binnedSplits[i] = bin.splits
	}
	return binnedSplits
}

// countingSplitFunc wraps a bufio.SplitFunc and keeps track of the number of bytes advanced.
func countingSplitFunc(split bufio.SplitFunc, bytesRead *int64) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		adv, tok, err := split(data, atEOF)
		(*bytesRead) += int64(adv)
		return adv, tok, err
	}
}
