package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rfpdesk/internal/model"
)

func TestDefaults(t *testing.T) {
	p := Static{}

	cases := []struct {
		name string
		got  any
		want any
	}{
		{"channel", Channel(p), model.ChannelSMTP},
		{"container", Container(p), model.ContainerUnit},
		{"format", Format(p), model.FormatPDF},
		{"output folder", Get(p, KeyOutputFolder), "./output"},
		{"temp folder", Get(p, KeyTempFolder), "./temp"},
		{"module config", Get(p, KeyModuleConfig), ""},
		{"gateway config", Get(p, KeyGatewayConfig), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestChannelMapping(t *testing.T) {
	cases := map[string]model.Channel{
		SendSMTP:       model.ChannelSMTP,
		SendEBICS:      model.ChannelRegulated,
		SendFilesystem: model.ChannelFilesystem,
		"bogus":        model.ChannelSMTP,
	}
	for stored, want := range cases {
		if got := Channel(Static{KeyOutputType: stored}); got != want {
			t.Errorf("Channel(%q) = %s, want %s", stored, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		key, value string
		ok         bool
	}{
		{KeyOutputType, SendEBICS, true},
		{KeyOutputType, "SEND_FAX", false},
		{KeyOutputFormat, "XML", true},
		{KeyOutputFormat, "DOCX", false},
		{KeyOutputContainer, "BATCH", true},
		{KeyOutputContainer, "ZIP", false},
		{KeyOutputFolder, "", false},
		{KeyModuleConfig, "conf/smic.yaml", true},
		{KeyGatewayConfig, "", true},
		{KeyStartDate, "2024-01-31", true},
		{KeyStartDate, "31/01/2024", false},
		{KeyEndDate, "", true},
		{"database.host", "localhost", false},
	}
	for _, tc := range cases {
		err := Validate(tc.key, tc.value)
		if tc.ok && err != nil {
			t.Errorf("Validate(%q, %q) unexpected error: %v", tc.key, tc.value, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Validate(%q, %q) expected ErrInvalidValue, got %v", tc.key, tc.value, err)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open missing file: %v", err)
	}
	if err := f.Set(KeyOutputType, " SEND_FILESYSTEM "); err != nil {
		t.Fatal(err)
	}
	if err := f.Set(KeyModuleConfig, "smic.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := Channel(reloaded); got != model.ChannelFilesystem {
		t.Errorf("channel after reload = %s", got)
	}
	if got := Get(reloaded, KeyModuleConfig); got != "smic.yaml" {
		t.Errorf("module config after reload = %q", got)
	}
	if got := reloaded.All()[KeyOutputFolder]; got != "./output" {
		t.Errorf("default folder missing from All(): %q", got)
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	err = f.Update(map[string]string{
		KeyOutputContainer: "BATCH",
		KeyOutputFormat:    "DOCX",
	})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if got := Container(f); got != model.ContainerUnit {
		t.Errorf("partial update applied: container = %s", got)
	}
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("output.type: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestDateRange(t *testing.T) {
	from, to := DateRange(Static{KeyStartDate: "2024-03-01"})
	if from.IsZero() || from.Month() != 3 {
		t.Errorf("unexpected start %v", from)
	}
	if !to.IsZero() {
		t.Errorf("expected zero end date, got %v", to)
	}
}
