// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the on-disk and on-wire span encoding shared
// by every storage writer and LogProvider: the magic header, the
// self-delimiting span record codec, and the three framings that sit on
// top of it (IET, IET-prefixed, ET).
package wire

import "fmt"

// DiskVersion is the current format version written into the magic
// header's 9th byte.
const DiskVersion uint8 = 1

// StorageFormat is the 10th byte of the magic header, identifying which
// of the three framings follows.
type StorageFormat uint8

const (
	FormatET StorageFormat = iota
	FormatIET
	FormatIETPrefixed
)

func (f StorageFormat) String() string {
	switch f {
	case FormatET:
		return "ET"
	case FormatIET:
		return "IET"
	case FormatIETPrefixed:
		return "IET-prefixed"
	default:
		return "unknown"
	}
}

// MagicSize is the fixed length of the header every artifact begins
// with.
const MagicSize = 10

// MagicParseError reports why a 10-byte header failed to parse.
type MagicParseError struct {
	Reason string
}

func (e *MagicParseError) Error() string {
	return "bad entrace magic: " + e.Reason
}

var (
	errFirstNonNull    = &MagicParseError{Reason: "first byte is not null"}
	errAppNameMismatch = &MagicParseError{Reason: "bytes 1..8 are not \"ENTRACE\""}
	errBadFormat       = &MagicParseError{Reason: "storage format byte must be 0, 1 or 2"}
)

// Magic builds the 10-byte header for the given version and format.
func Magic(version uint8, format StorageFormat) [MagicSize]byte {
	return [MagicSize]byte{0, 'E', 'N', 'T', 'R', 'A', 'C', 'E', version, byte(format)}
}

// ParseMagic validates and decodes a 10-byte header, returning the
// encoded version and storage format.
func ParseMagic(buf [MagicSize]byte) (uint8, StorageFormat, error) {
	if buf[0] != 0 {
		return 0, 0, errFirstNonNull
	}
	if string(buf[1:8]) != "ENTRACE" {
		return 0, 0, errAppNameMismatch
	}
	if buf[8] > DiskVersion {
		return 0, 0, &InvalidVersionError{Got: buf[8]}
	}
	switch buf[9] {
	case byte(FormatET):
		return buf[8], FormatET, nil
	case byte(FormatIET):
		return buf[8], FormatIET, nil
	case byte(FormatIETPrefixed):
		return buf[8], FormatIETPrefixed, nil
	default:
		return 0, 0, errBadFormat
	}
}

// InvalidVersionError is returned when a file's version byte is newer
// than DiskVersion.
type InvalidVersionError struct {
	Got uint8
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("cannot parse newer disk format than known: have %d, file has %d", DiskVersion, e.Got)
}
