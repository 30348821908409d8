package main

import "testing"

func TestClassifyStaysWithinSchemaEnums(t *testing.T) {
	allowed := map[string]bool{"FIRE": true, "MEDICAL": true, "POLICE": true, "TRAFFIC": true, "UTILITY": true, "OTHER": true}
	severities := map[string]bool{"CRITICAL": true, "MAJOR": true, "MINOR": true}

	reports := []string{
		"warehouse fire downtown",
		"two-car collision on the interchange",
		"pedestrian injured near the plaza",
		"reported theft at the corner store",
		"unclassifiable mumbling",
	}
	for _, report := range reports {
		payload := classify(report)
		if !allowed[payload["type"].(string)] {
			t.Fatalf("report %q produced out-of-enum type %v", report, payload["type"])
		}
		if !severities[payload["severity"].(string)] {
			t.Fatalf("report %q produced out-of-enum severity %v", report, payload["severity"])
		}
		score := payload["priority_score"].(int)
		if score < 1 || score > 10 {
			t.Fatalf("report %q produced out-of-range priority %d", report, score)
		}
	}
}
