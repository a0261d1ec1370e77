package scoring

import (
	"math"
	"strconv"
	"testing"
)

func TestParseDuration(t *testing.T) {
	scorer := NewScorerAt("", 2024)

	tests := []struct {
		name      string
		input     string
		wantStart int
		wantEnd   int
		wantOK    bool
	}{
		{"year to present", "2019 - present", 2019, 2024, true},
		{"year range", "2015 - 2018", 2015, 2018, true},
		{"month year range", "01/2020 - 06/2023", 2020, 2023, true},
		{"present uppercase", "2021 - Present", 2021, 2024, true},
		{"empty", "", 0, 0, false},
		{"garbage", "a while ago", 0, 0, false},
		{"present without start year", "since - present", 0, 0, false},
		{"single year", "2020", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := scorer.ParseDuration(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDuration(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("ParseDuration(%q) = (%d, %d), want (%d, %d)", tt.input, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestScoreCandidateEmpty(t *testing.T) {
	scorer := NewScorerAt("", 2024)
	if got := scorer.ScoreCandidate(nil); got != 0.0 {
		t.Errorf("empty experience score = %v, want 0.0", got)
	}
}

func TestPositionScoreCurrentRole(t *testing.T) {
	scorer := NewScorerAt("", 2024)
	job := map[string]interface{}{
		"TITLE":    "Senior Developer",
		"COMPANY":  "Acme",
		"DURATION": "2019 - present",
	}

	// years=5, base=5*1.5=7.5, recency=1.2, seniority(senior)=1.3
	want := 7.5 * 1.2 * 1.3
	if got := scorer.PositionScore(job); math.Abs(got-want) > 1e-9 {
		t.Errorf("PositionScore = %v, want %v", got, want)
	}
}

func TestPositionScoreUnparseableDuration(t *testing.T) {
	scorer := NewScorerAt("", 2024)
	job := map[string]interface{}{"TITLE": "Developer", "DURATION": "unknown"}
	if got := scorer.PositionScore(job); got != 0.0 {
		t.Errorf("unparseable duration score = %v, want 0.0", got)
	}
}

func TestPositionScoreDomainBoost(t *testing.T) {
	scorer := NewScorerAt("python backend systems", 2024)

	boosted := scorer.PositionScore(map[string]interface{}{
		"TITLE":            "Developer",
		"DURATION":         "2022 - 2024",
		"RESPONSIBILITIES": []interface{}{"Built Python services"},
	})
	plain := scorer.PositionScore(map[string]interface{}{
		"TITLE":            "Developer",
		"DURATION":         "2022 - 2024",
		"RESPONSIBILITIES": []interface{}{"Built Java services"},
	})

	if math.Abs(boosted-plain*1.3) > 1e-9 {
		t.Errorf("boosted = %v, plain = %v, want boosted = plain*1.3", boosted, plain)
	}
}

func TestPositionScoreMonotonicInDuration(t *testing.T) {
	scorer := NewScorerAt("", 2024)

	prev := 0.0
	for _, start := range []int{2023, 2021, 2018, 2014} {
		job := map[string]interface{}{
			"TITLE":    "Engineer",
			"DURATION": strconv.Itoa(start) + " - 2024",
		}
		got := scorer.PositionScore(job)
		if got < prev {
			t.Fatalf("score decreased for longer tenure: start %d gave %v after %v", start, got, prev)
		}
		prev = got
	}
}

func TestScoreCandidateBreadthBonus(t *testing.T) {
	scorer := NewScorerAt("", 2024)

	job := map[string]interface{}{"TITLE": "Engineer", "DURATION": "2023 - 2024"}
	two := scorer.ScoreCandidate([]map[string]interface{}{job, job})
	three := scorer.ScoreCandidate([]map[string]interface{}{job, job, job})

	single := scorer.PositionScore(job)
	wantThree := math.Round(single*3*1.1*100) / 100
	if math.Abs(three-wantThree) > 1e-9 {
		t.Errorf("three entries = %v, want %v", three, wantThree)
	}
	wantTwo := math.Round(single*2*100) / 100
	if math.Abs(two-wantTwo) > 1e-9 {
		t.Errorf("two entries = %v, want %v", two, wantTwo)
	}
}
