package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

func TestJobType(t *testing.T) {
	if _, err := JobType("CSV"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := JobType("bogus"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSourceRef(t *testing.T) {
	if err := SourceRef(model.JobTypeSingle, ""); err != nil {
		t.Fatalf("SINGLE jobs should not require source_ref: %v", err)
	}
	if err := SourceRef(model.JobTypeCSV, ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty source_ref on CSV, got %v", err)
	}
	if err := SourceRef(model.JobTypeCSV, "s3://bucket/file.csv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPageSize(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", DefaultPageSize, false},
		{"10", 10, false},
		{"10000", MaxPageSize, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := PageSize(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("PageSize(%q): expected ErrValidation, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("PageSize(%q): unexpected error %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("PageSize(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func TestItemStatuses(t *testing.T) {
	statuses, err := ItemStatuses("DONE,ERROR", splitComma)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 2 || statuses[0] != model.ItemDone || statuses[1] != model.ItemError {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	if statuses, err := ItemStatuses("", splitComma); err != nil || statuses != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", statuses, err)
	}

	if _, err := ItemStatuses("BOGUS", splitComma); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestJobTransition(t *testing.T) {
	if err := JobTransition(model.QueueStateQueued, model.QueueStateRunning); err != nil {
		t.Fatalf("unexpected error for legal edge: %v", err)
	}
	if err := JobTransition(model.QueueStateDone, model.QueueStateRunning); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for illegal edge, got %v", err)
	}
}
