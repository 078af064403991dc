// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomFrame(rng *rand.Rand) (uint8, uint8, []byte) {
	address := uint8(AddressMin + rng.Intn(AddressMax-AddressMin+1))
	command := uint8(rng.Intn(256))
	payload := make([]byte, rng.Intn(MaxPayloadSize+1))
	rng.Read(payload)
	return address, command, payload
}

// ============================================================
// Property Tests
// ============================================================

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		address, command, payload := randomFrame(rng)
		_, wire, err := Encode(address, command, payload)
		if err != nil {
			t.Fatalf("round %d: Encode error: %v", i, err)
		}
		f, err := Decode(wire)
		if err != nil {
			t.Fatalf("round %d: Decode error: %v", i, err)
		}
		if f.Address != address || f.Command != command || !bytes.Equal(f.Payload, payload) {
			t.Fatalf("round %d: round trip mismatch", i)
		}
	}
}

// Every single bit flip must be rejected. Body and trailer flips are always
// CRC failures; a flipped length byte either starves the frame or shifts the
// CRC window; a flipped start byte is rejected before anything else.
func TestFuzz_SingleBitCorruption(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		address, command, payload := randomFrame(rng)
		_, wire, _ := Encode(address, command, payload)

		pos := rng.Intn(len(wire))
		bit := uint(rng.Intn(8))
		corrupted := append([]byte(nil), wire...)
		corrupted[pos] ^= 1 << bit

		f, err := Decode(corrupted)
		if f != nil {
			t.Fatalf("round %d: corrupted frame accepted (pos=%d bit=%d)", i, pos, bit)
		}

		switch pos {
		case 0:
			if !errors.Is(err, ErrBadStart) {
				t.Fatalf("round %d: start byte flip gave %v", i, err)
			}
		case 3:
			if !errors.Is(err, ErrIncomplete) && !errors.Is(err, ErrCrcMismatch) && !errors.Is(err, ErrLengthMismatch) {
				t.Fatalf("round %d: length byte flip gave %v", i, err)
			}
		default:
			if !errors.Is(err, ErrCrcMismatch) {
				t.Fatalf("round %d: flip at %d gave %v", i, pos, err)
			}
		}
	}
}

// Exhaustive over every bit of a short frame
func TestSingleBitCorruption_Exhaustive(t *testing.T) {
	_, wire, _ := Encode(2, CmdReadHoldingRegisters, []byte{0x00, 0x10, 0x00, 0x02})

	for pos := range wire {
		for bit := uint(0); bit < 8; bit++ {
			corrupted := append([]byte(nil), wire...)
			corrupted[pos] ^= 1 << bit
			if f, err := Decode(corrupted); err == nil {
				t.Errorf("flip pos=%d bit=%d accepted: %+v", pos, bit, f)
			}
		}
	}
}

func TestFuzz_DecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()

	buf := make([]byte, 64)
	for i := 0; i < rounds; i++ {
		rng.Read(buf)
		// Must never panic; CRC errors are expected
		d.Feed(buf)
	}
}

// ============================================================
// Native Fuzz Targets
// ============================================================

func FuzzDecode(f *testing.F) {
	_, ack, _ := Encode(2, CmdPing, nil)
	f.Add(ack)
	f.Add([]byte{0xAA})
	f.Add([]byte{0xAA, 0x01, 0x03, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		fr, err := Decode(data)
		if err != nil {
			return
		}
		if !bytes.Equal(fr.Bytes(), data) {
			t.Fatalf("accepted frame does not re-encode to input: % X", data)
		}
	})
}
