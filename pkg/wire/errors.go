// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package wire

import "errors"

var errUnknownValueKind = errors.New("wire: unknown value kind byte")

// ConvertError wraps a failure in the IET<->ET conversion pipeline,
// naming the step (Op) that failed. It carries no data: ETWriter hands
// the unconverted IET bytes back separately, in ETShutdownResult.Data.
type ConvertError struct {
	Op  string
	Err error
}

func (e *ConvertError) Error() string {
	return "wire: " + e.Op + ": " + e.Err.Error()
}

func (e *ConvertError) Unwrap() error { return e.Err }

// NotEnoughBytesError is returned when a reader runs out of input
// before a record's declared length is satisfied, outside the
// recoverable tail-of-IET-log case.
type NotEnoughBytesError struct {
	Offset int64
}

func (e *NotEnoughBytesError) Error() string {
	return "wire: not enough bytes at offset"
}

// GatherError wraps a failure encountered while pre-scanning an IET
// stream to build its offset/pool tables ahead of conversion.
type GatherError struct {
	Inner error
}

func (e *GatherError) Error() string { return "wire: gather failed: " + e.Inner.Error() }
func (e *GatherError) Unwrap() error { return e.Inner }
