package parts

// Identity returns the key used to recognize successive updates of the same
// part within a message, and false for parts that only ever append (text,
// reasoning, unknown).
func Identity(p Part) (string, bool) {
	switch v := p.(type) {
	case ToolPart:
		if v.ToolCallID != "" {
			return "tool:" + v.ToolCallID, true
		}
	case DynamicToolPart:
		if v.ToolCallID != "" {
			return "tool:" + v.ToolCallID, true
		}
	case NetworkPart:
		if v.ID != "" {
			return "network:" + v.ID, true
		}
	case SourcePart:
		if v.SourceID != "" {
			return "source:" + v.SourceID, true
		}
		if v.URL != "" {
			return "source:" + v.URL, true
		}
	}
	return "", false
}

// MergeNetwork folds an incoming update of a network trace into existing.
// Steps are matched by position and never reordered or removed: a shorter
// incoming step list leaves trailing steps untouched, a longer one appends.
// Non-empty incoming scalar fields overwrite the existing ones.
func MergeNetwork(existing, incoming NetworkPart) NetworkPart {
	out := existing
	if incoming.ID != "" {
		out.ID = incoming.ID
	}
	if incoming.Name != "" {
		out.Name = incoming.Name
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if len(incoming.Output) > 0 {
		out.Output = incoming.Output
	}
	if len(incoming.Steps) == 0 {
		return out
	}
	steps := make([]Step, len(existing.Steps), max(len(existing.Steps), len(incoming.Steps)))
	copy(steps, existing.Steps)
	for i, s := range incoming.Steps {
		if i >= len(steps) {
			steps = append(steps, s)
			continue
		}
		steps[i] = mergeStep(steps[i], s)
	}
	out.Steps = steps
	return out
}

func mergeStep(existing, incoming Step) Step {
	out := existing
	if incoming.ID != "" {
		out.ID = incoming.ID
	}
	if incoming.Name != "" {
		out.Name = incoming.Name
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.Task != nil {
		task := *incoming.Task
		if existing.Task != nil && task.Reason == "" {
			task.Reason = existing.Task.Reason
		}
		out.Task = &task
	}
	if len(incoming.Input) > 0 {
		out.Input = incoming.Input
	}
	if len(incoming.Output) > 0 {
		out.Output = incoming.Output
	}
	return out
}
