package esp32

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

//go:embed assets/stub_esp32.json assets/stub_esp32s3.json assets/stub_esp32c3.json
var stubAssets embed.FS

// Stub is the RAM stub image layout esptool's stub protocol expects: two
// segments (text, data) to load at fixed addresses, and an entry point to
// jump to once both are resident.
type Stub struct {
	TextStart uint32
	Text      []byte
	DataStart uint32
	Data      []byte
	Entry     uint32
}

type stubJSON struct {
	TextStart uint32 `json:"text_start"`
	Text      string `json:"text"`
	DataStart uint32 `json:"data_start"`
	Data      string `json:"data"`
	Entry     uint32 `json:"entry"`
}

// LoadStub decodes the bundled JSON stub asset for chipName ("esp32",
// "esp32s3", "esp32c3").
func LoadStub(chipName string) (*Stub, error) {
	raw, err := stubAssets.ReadFile("assets/stub_" + chipName + ".json")
	if err != nil {
		return nil, fmt.Errorf("esp32: no bundled stub for %s: %w", chipName, err)
	}
	var sj stubJSON
	if err := json.Unmarshal(raw, &sj); err != nil {
		return nil, fmt.Errorf("esp32: malformed stub asset: %w", err)
	}
	text, err := base64.StdEncoding.DecodeString(sj.Text)
	if err != nil {
		return nil, fmt.Errorf("esp32: bad stub text encoding: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(sj.Data)
	if err != nil {
		return nil, fmt.Errorf("esp32: bad stub data encoding: %w", err)
	}
	return &Stub{TextStart: sj.TextStart, Text: text, DataStart: sj.DataStart, Data: data, Entry: sj.Entry}, nil
}

// segmentBlocks splits data into memBlockSize chunks, the granularity
// MEM_DATA uploads a segment in.
func segmentBlocks(data []byte) [][]byte {
	var blocks [][]byte
	for off := 0; off < len(data); off += memBlockSize {
		end := off + memBlockSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, data[off:end])
	}
	if len(blocks) == 0 {
		blocks = [][]byte{{}}
	}
	return blocks
}
