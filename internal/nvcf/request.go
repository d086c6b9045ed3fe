package nvcf

import (
	"fmt"
	"net/http"
	"strings"
)

// Param is one command-line parameter of a function invocation,
// rendered as --key=value. Params are ordered; the command string
// preserves the order they are supplied in.
type Param struct {
	Key   string
	Value string
}

// GenerateCommand renders an operation name and its parameters as the
// command string the function executes: "op --k1=v1 --k2=v2".
//
// Values are interpolated verbatim with no quoting or escaping, so they
// must not contain spaces or other characters that would corrupt the
// command grammar.
func GenerateCommand(operation string, params []Param) string {
	var b strings.Builder
	b.WriteString(operation)
	for _, p := range params {
		b.WriteString(fmt.Sprintf(" --%s=%s", p.Key, p.Value))
	}
	return b.String()
}

// requestInput is one entry in the request body's inputs array.
type requestInput struct {
	Name     string   `json:"name"`
	Shape    []int    `json:"shape"`
	Datatype string   `json:"datatype"`
	Data     []string `json:"data"`
}

// requestBody is the function submission body: a command entry plus one
// positional asset-reference entry per uploaded asset.
type requestBody struct {
	Inputs []requestInput `json:"inputs"`
}

// formatRequest builds the submission body and headers for a command
// and the asset IDs produced by prior uploads in the same invocation.
// The asset-reference header is only present when assets exist.
func (c *Client) formatRequest(command string, assetIDs []string) (*requestBody, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("Content-Type", "application/json")
	header.Set("NVCF-POLL-SECONDS", pollSecondsHint)
	if len(assetIDs) > 0 {
		header.Set("NVCF-INPUT-ASSET-REFERENCES", strings.Join(assetIDs, ","))
	}

	body := &requestBody{
		Inputs: []requestInput{
			{Name: "command", Shape: []int{1}, Datatype: "BYTES", Data: []string{command}},
		},
	}
	for i, id := range assetIDs {
		body.Inputs = append(body.Inputs, requestInput{
			Name:     fmt.Sprintf("image_assetId_%d", i),
			Shape:    []int{1},
			Datatype: "BYTES",
			Data:     []string{id},
		})
	}
	return body, header
}
