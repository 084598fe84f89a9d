// Command lanhop-genframe writes sample wire frames, one transfer per file,
// for protocol fixtures and interop checks.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"lanhop/pkg/address"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
)

func main() {
	outDir := flag.String("out", "testdata/frame", "output directory for binary frames")
	sender := flag.String("sender", address.Encode(0, 4, 20), "sender word address stamped in headers")
	pass := flag.String("passphrase", "lanhop", "passphrase for the obfuscated samples")
	flag.Parse()
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}
	stamp := func(e protocol.Envelope) protocol.Envelope {
		e.SenderAddress = *sender
		return e
	}

	// 1) Text and link
	writeOut(*outDir, "frame_text.bin", mustFrame(stamp(protocol.NewText("hello from lanhop"))))
	writeOut(*outDir, "frame_link.bin", mustFrame(stamp(protocol.NewLink("https://example.org/a?b=c"))))

	// 2) File with a byte ramp payload
	ramp := make([]byte, 40)
	for i := range ramp {
		ramp[i] = byte(i)
	}
	file := stamp(protocol.NewFile("ramp.bin", ramp))
	writeOut(*outDir, "frame_file.bin", mustFrame(file))

	// 3) The same file and a text, obfuscated
	obfFile := file
	obfFile.Payload = obfuscate.Transform(ramp, *pass)
	obfFile.Obfuscated, obfFile.ObfuscationCode = true, *pass
	writeOut(*outDir, "frame_file_obfuscated.bin", mustFrame(obfFile))
	obfText := stamp(protocol.NewText("secret-ish"))
	obfText.Text = obfuscate.TransformText(obfText.Text, *pass)
	obfText.Obfuscated, obfText.ObfuscationCode = true, *pass
	writeOut(*outDir, "frame_text_obfuscated.bin", mustFrame(obfText))

	// 4) Three frames of one stream and a two-file collection
	for seq := int64(1); seq <= 3; seq++ {
		f := stamp(protocol.NewStreamFrame("sample-stream", seq, []byte{0x89, 'P', 'N', 'G', byte(seq)}))
		writeOut(*outDir, fmt.Sprintf("frame_stream_%02d.bin", seq), mustFrame(f))
	}
	for i, name := range []string{"a.txt", "b.txt"} {
		f := stamp(protocol.NewCollectionFile("sample-collection", name, []byte(strings.Repeat(name[:1], i+1))))
		writeOut(*outDir, fmt.Sprintf("frame_collection_%02d.bin", i), mustFrame(f))
	}

	// 5) A file frame cut short of its declared payload
	full := mustFrame(file)
	writeOut(*outDir, "frame_file_truncated.bin", full[:len(full)-10])

	fmt.Println("Generated frames in", *outDir)
}

func mustFrame(e protocol.Envelope) []byte {
	f, err := e.Frame()
	if err != nil {
		log.Fatal(err)
	}
	return f.Bytes()
}

func writeOut(dir, name string, b []byte) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%-28s %5d bytes  head: %s\n", name, len(b), shortHex(b, 32))
}

func shortHex(b []byte, n int) string {
	if len(b) == 0 {
		return ""
	}
	if n > len(b) {
		n = len(b)
	}
	enc := hex.EncodeToString(b[:n])
	if len(b) > n {
		enc += "..."
	}
	var out []string
	for i := 0; i < len(enc); i += 4 {
		j := min(i+4, len(enc))
		out = append(out, enc[i:j])
	}
	return strings.Join(out, " ")
}
