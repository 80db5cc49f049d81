package pages

import "fmt"

// ComputeMove returns the order produced by dropping active onto target.
//
// When active is selected the whole selection moves as one block, keeping its
// relative order; otherwise only active moves. The block is inserted in front
// of target's position among the entries that did not move.
//
// If target is itself part of the moving block (and is not active) the block
// is anchored to target's nearest unmoved neighbor in the current order,
// looking at the following entry before the preceding one at equal distance.
// A following neighbor receives the block in front of it, a preceding one
// behind it. With no unmoved entries left the block goes to the end.
func ComputeMove(order []string, active, target string, selection IDSet) ([]string, error) {
	out := append([]string(nil), order...)
	if active == target {
		return out, nil
	}

	activeIdx, targetIdx := -1, -1
	for i, id := range order {
		switch id {
		case active:
			activeIdx = i
		case target:
			targetIdx = i
		}
	}
	if activeIdx < 0 {
		return nil, &InvariantViolation{Op: "move", Detail: fmt.Sprintf("active id %q not in registry", active)}
	}
	if targetIdx < 0 {
		return nil, &InvariantViolation{Op: "move", Detail: fmt.Sprintf("target id %q not in registry", target)}
	}

	moveSet := NewIDSet(active)
	if selection.Has(active) {
		moveSet = selection
	}

	moved := make([]string, 0, len(moveSet))
	remaining := make([]string, 0, len(order))
	posInRemaining := make(map[string]int, len(order))
	for _, id := range order {
		if moveSet.Has(id) {
			moved = append(moved, id)
			continue
		}
		posInRemaining[id] = len(remaining)
		remaining = append(remaining, id)
	}

	idx, ok := posInRemaining[target]
	if !ok {
		idx = anchorIndex(order, targetIdx, moveSet, posInRemaining, len(remaining))
	}

	out = out[:0]
	out = append(out, remaining[:idx]...)
	out = append(out, moved...)
	out = append(out, remaining[idx:]...)
	return out, nil
}

// anchorIndex finds the splice point for a target that is moving itself.
func anchorIndex(order []string, targetIdx int, moveSet IDSet, posInRemaining map[string]int, end int) int {
	for d := 1; d < len(order); d++ {
		if after := targetIdx + d; after < len(order) && !moveSet.Has(order[after]) {
			return posInRemaining[order[after]]
		}
		if before := targetIdx - d; before >= 0 && !moveSet.Has(order[before]) {
			return posInRemaining[order[before]] + 1
		}
	}
	return end
}
