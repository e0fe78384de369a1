package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateAcceptsWellFormedPayloads(t *testing.T) {
	tests := []struct {
		subject string
		payload string
	}{
		{SubjectContentSubmitted, `{"content_item_id":"c1","instance_id":"i1","submitter_id":"u1","collection_id":"col1"}`},
		{SubjectReviewRequested, `{"content_item_id":"c1","instance_id":"i1","reviewer_id":"r1","round":1,"score":6.5}`},
		{SubjectReviewDecided, `{"content_item_id":"c1","instance_id":"i1","kind":"human_approve","reviewer_id":"r1","score":6.5}`},
		{SubjectInstanceFinished, `{"content_item_id":"c1","instance_id":"i1","state":"completed"}`},
		{SubjectRepairIndex, `{"content_item_id":"c1","instance_id":"i1","side":"graph","collection_id":"col1","title":"t","payload_ref":"ref","score":8.1,"topics":["go"],"attempt":1}`},
		{SubjectRepairDone, `{"content_item_id":"c1","side":"search","external_url":"https://search.example/c1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			if err := Validate(tt.subject, []byte(tt.payload)); err != nil {
				t.Fatalf("Validate(%s): %v", tt.subject, err)
			}
		})
	}
}

func TestValidateUnknownSubjectPasses(t *testing.T) {
	// New subjects must be publishable before this switch learns about them.
	if err := Validate("reviews.future.thing", []byte(`{"foo":"bar"}`)); err != nil {
		t.Fatalf("unknown subject should pass: %v", err)
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	err := Validate(SubjectRepairIndex, []byte(`{not valid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateRejectsWrongShape(t *testing.T) {
	// Valid JSON that cannot unmarshal into the subject's payload struct.
	err := Validate(SubjectReviewDecided, []byte(`"just a string"`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateEmptyObjectPasses(t *testing.T) {
	// All payload fields are optional at this layer; handlers own semantic
	// checks like non-empty IDs.
	if err := Validate(SubjectContentSubmitted, []byte(`{}`)); err != nil {
		t.Fatalf("empty object should pass structural validation: %v", err)
	}
}
