// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"bytes"
	"testing"
)

// permutations returns all orderings of the numbers below n.
func permutations(n int) (perms [][]int) {
	var generate func(current []int, rest []int)
	generate = func(current []int, rest []int) {
		if len(rest) == 0 {
			perm := make([]int, len(current))
			copy(perm, current)
			perms = append(perms, perm)
			return
		}
		for i, pick := range rest {
			next := make([]int, 0, len(rest)-1)
			next = append(next, rest[:i]...)
			next = append(next, rest[i+1:]...)
			generate(append(current, pick), next)
		}
	}

	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	generate(nil, indexes)
	return
}

func TestMergePermutations(t *testing.T) {
	payload := testPayload(t, 300)
	m := NewMessage(5, payload)

	offsets := []int{0, 100, 200}

	for _, perm := range permutations(len(offsets)) {
		var assembled *Message
		for _, i := range perm {
			// 107 byte buffers host exactly 100 data bytes
			frag, n := writeFragment(t, m, offsets[i], 107)
			if n != 100 {
				t.Fatalf("expected 100 byte fragments, got %d", n)
			}

			if assembled == nil {
				assembled = frag
			} else {
				assembled = Merge(assembled, frag)
			}

			if err := assembled.CheckValid(); err != nil {
				t.Fatalf("permutation %v: %v", perm, err)
			}
		}

		if !assembled.IsComplete() {
			t.Fatalf("permutation %v did not complete: %v", perm, assembled)
		}
		if !bytes.Equal(assembled.Data(), payload) {
			t.Fatalf("permutation %v: payload mismatches", perm)
		}
	}
}

func TestMergeDuplicateFragment(t *testing.T) {
	payload := testPayload(t, 300)
	m := NewMessage(6, payload)

	f1, _ := writeFragment(t, m, 0, 107)
	f2, _ := writeFragment(t, m, 100, 107)
	f2dup, _ := writeFragment(t, m, 100, 107)
	f3, _ := writeFragment(t, m, 200, 107)

	assembled := Merge(f1, f2)
	if assembled.IsComplete() {
		t.Fatal("message must not be complete yet")
	}

	// the duplicate finds no hosting gap and is dropped silently
	assembled = Merge(assembled, f2dup)
	if err := assembled.CheckValid(); err != nil {
		t.Fatal(err)
	}
	if assembled.IsComplete() {
		t.Fatal("duplicate fragment must not complete the message")
	}

	assembled = Merge(assembled, f3)
	if !assembled.IsComplete() {
		t.Fatal("message did not complete")
	}
	if !bytes.Equal(assembled.Data(), payload) {
		t.Fatal("payload mismatches")
	}
}

func TestMergeInvalidatesSource(t *testing.T) {
	m := NewMessage(7, testPayload(t, 300))

	f1, _ := writeFragment(t, m, 0, 107)
	f2, _ := writeFragment(t, m, 100, 107)

	Merge(f1, f2)
	if f2.IsValid() {
		t.Fatal("merged message must be invalidated")
	}
}

func TestMergeMismatchingMessages(t *testing.T) {
	a, _ := writeFragment(t, NewMessage(1, testPayload(t, 300)), 0, 107)
	b, _ := writeFragment(t, NewMessage(2, testPayload(t, 300)), 100, 107)

	merged := Merge(a, b)
	if !b.IsValid() {
		t.Fatal("foreign message must not be invalidated")
	}
	if merged.IsComplete() {
		t.Fatal("foreign fragments must not merge")
	}
	if err := merged.CheckValid(); err != nil {
		t.Fatal(err)
	}
}

func TestMergeSwapsToEarlierOffset(t *testing.T) {
	payload := testPayload(t, 200)
	m := NewMessage(8, payload)

	early, _ := writeFragment(t, m, 0, 107)
	late, _ := writeFragment(t, m, 100, 107)

	// the later view is the merge target; Merge swaps the contents
	assembled := Merge(late, early)
	if !assembled.IsComplete() {
		t.Fatalf("message did not complete: %v", assembled)
	}
	if !bytes.Equal(assembled.Data(), payload) {
		t.Fatal("payload mismatches")
	}
}
