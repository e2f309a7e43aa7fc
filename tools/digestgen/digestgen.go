// Package main implements digestgen, a tiny helper to generate deterministic
// datasets of 64-byte digests for standalone load-testing of timestampd
// (outside `go test`). It emits one base64-encoded digest per line.
//
// Usage:
//
//	go run ./tools/digestgen -n 1000000 -seed 42 -out digests.txt
//
// Flags:
//
//	-n     number of digests to generate (default 1e6)
//	-seed  PRNG seed (default current time)
//	-out   output file (default stdout)
//
// Output is not cryptographically random; it is a deterministic PRNG stream
// over SHA-512, seeded so a dataset can be regenerated byte-for-byte for
// performance regression hunting.
//
// © 2025 merkle-timestamp authors. MIT License.
package main

import (
	"bufio"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of digests to generate")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	var counter [8]byte
	for i := 0; i < *n; i++ {
		binary.LittleEndian.PutUint64(counter[:], rnd.Uint64())
		sum := sha512.Sum512(counter[:])
		fmt.Fprintln(w, base64.StdEncoding.EncodeToString(sum[:]))
	}
}
