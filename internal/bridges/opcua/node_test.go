package opcua

import (
	"errors"
	"testing"
)

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		in      string
		want    NodeID
		wantErr bool
	}{
		{"ns=1;i=81", NodeID{1, 81}, false},
		{" ns=1;i=267 ", NodeID{1, 267}, false},
		{"i=26", NodeID{0, 26}, false},
		{"ns=1", NodeID{}, true},
		{"ns=1;s=Jog", NodeID{}, true},
		{"ns=70000;i=1", NodeID{}, true},
		{"garbage", NodeID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNodeID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNodeID) {
					t.Errorf("ParseNodeID(%q) error = %v, want ErrInvalidNodeID", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNodeID(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseNodeID(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNodeID_String(t *testing.T) {
	if got := (NodeID{Namespace: 1, ID: 81}).String(); got != "ns=1;i=81" {
		t.Errorf("String() = %q", got)
	}
}
