package command

import (
	"errors"
	"testing"
)

func TestCommandBytes(t *testing.T) {
	got := Command{R: 255, G: 0, B: 128}.Bytes()
	want := []byte{255, 0, 128}
	if string(got) != string(want) {
		t.Errorf("Bytes() = %v, want %v", got, want)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    Command
		wantErr bool
	}{
		{"#ff0080", Command{255, 0, 128}, false},
		{"FF0080", Command{255, 0, 128}, false},
		{"255,0,128", Command{255, 0, 128}, false},
		{"255 0 128", Command{255, 0, 128}, false},
		{" 1, 2, 3 ", Command{1, 2, 3}, false},
		{"#000000", Command{}, false},

		{"", Command{}, true},
		{"#ff00", Command{}, true},
		{"#gg0080", Command{}, true},
		{"256,0,0", Command{}, true},
		{"1,2", Command{}, true},
		{"-1,0,0", Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	if got := (Command{R: 255, G: 0, B: 128}).String(); got != "#ff0080" {
		t.Errorf("String() = %q", got)
	}
}
