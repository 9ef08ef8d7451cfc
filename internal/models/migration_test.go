package models

import "testing"

func TestParseBehavior(t *testing.T) {
	tests := []struct {
		input   string
		expect  Behavior
		wantErr bool
	}{
		{"", CaptureAndRestoreAllUserAccounts, false},
		{"all", CaptureAndRestoreAllUserAccounts, false},
		{"CaptureAndRestoreAllUserAccounts", CaptureAndRestoreAllUserAccounts, false},
		{"specified", CaptureAndRestoreSpecifiedUserAccounts, false},
		{" CaptureAndRestoreSpecifiedUserAccounts ", CaptureAndRestoreSpecifiedUserAccounts, false},
		{"everything", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseBehavior(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseBehavior(%q) should fail", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBehavior(%q): %v", tc.input, err)
			}
			if got != tc.expect {
				t.Errorf("ParseBehavior(%q) = %v, want %v", tc.input, got, tc.expect)
			}
		})
	}
}

func TestAssociationReferences(t *testing.T) {
	a := Association{SourceName: "PC-OLD", RestoreName: "PC-NEW"}
	if !a.References("pc-old") {
		t.Error("should match source name case-insensitively")
	}
	if !a.References("PC-NEW") {
		t.Error("should match restore name")
	}
	if a.References("PC-OTHER") {
		t.Error("should not match unrelated host")
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[StatusCode]string{
		StatusNotFound:   "NotFound",
		StatusSuccess:    "Success",
		StatusInProgress: "InProgress",
		StatusWaiting:    "Waiting",
		StatusFailed:     "Failed",
		StatusCode(9):    "Status(9)",
	}
	for code, want := range tests {
		if got := code.String(); got != want {
			t.Errorf("StatusCode(%d).String() = %q, want %q", int(code), got, want)
		}
	}
	if (DeploymentStatus{}).Found() {
		t.Error("zero status should not be Found")
	}
}
