package nvcf

import (
	"testing"
)

func TestGenerateCommand(t *testing.T) {
	cmd := GenerateCommand("vis_control", []Param{
		{Key: "prompt", Value: "city_street"},
		{Key: "sigma_max", Value: "80"},
		{Key: "seed", Value: "1"},
	})
	want := "vis_control --prompt=city_street --sigma_max=80 --seed=1"
	if cmd != want {
		t.Errorf("expected %q, got %q", want, cmd)
	}
}

func TestGenerateCommand_NoParams(t *testing.T) {
	if cmd := GenerateCommand("probe", nil); cmd != "probe" {
		t.Errorf("expected bare operation name, got %q", cmd)
	}
}

func TestFormatRequest_WithAssets(t *testing.T) {
	c := NewClient("test-token")
	body, header := c.formatRequest("vis_control --seed=1", []string{"asset-a", "asset-b"})

	if got := header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("unexpected Authorization header: %q", got)
	}
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected Content-Type header: %q", got)
	}
	if got := header.Get("NVCF-POLL-SECONDS"); got != "3600" {
		t.Errorf("unexpected NVCF-POLL-SECONDS header: %q", got)
	}
	if got := header.Get("NVCF-INPUT-ASSET-REFERENCES"); got != "asset-a,asset-b" {
		t.Errorf("unexpected asset references header: %q", got)
	}

	if len(body.Inputs) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(body.Inputs))
	}
	if body.Inputs[0].Name != "command" || body.Inputs[0].Data[0] != "vis_control --seed=1" {
		t.Errorf("unexpected command input: %+v", body.Inputs[0])
	}
	if body.Inputs[1].Name != "image_assetId_0" || body.Inputs[1].Data[0] != "asset-a" {
		t.Errorf("unexpected first asset input: %+v", body.Inputs[1])
	}
	if body.Inputs[2].Name != "image_assetId_1" || body.Inputs[2].Data[0] != "asset-b" {
		t.Errorf("unexpected second asset input: %+v", body.Inputs[2])
	}
}

func TestFormatRequest_NoAssets(t *testing.T) {
	c := NewClient("test-token")
	body, header := c.formatRequest("probe", nil)

	if _, ok := header["Nvcf-Input-Asset-References"]; ok {
		t.Error("asset references header must be absent when no assets exist")
	}
	if len(body.Inputs) != 1 {
		t.Errorf("expected only the command input, got %d inputs", len(body.Inputs))
	}
}
