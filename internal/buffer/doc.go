// Package buffer provides the named line buffers that hold macro source.
//
// A Buffer is a list of physical lines with a version counter that is bumped
// on every text change. The script engine uses the version to decide when a
// cached control-flow table is stale.
//
// Basic usage:
//
//	reg := buffer.NewRegistry()
//	buf := reg.Create("greet")
//	_ = buf.SetText("print('hello ' .. args[1])")
//
// Busy buffers:
//
// A buffer may carry an Extension (the script engine's per-macro record).
// While the extension reports Busy, text changes are refused with
// ErrBufferBusy so that an executing macro never sees its own source
// change underneath it.
//
// Thread Safety:
//
// All Buffer and Registry methods are safe for concurrent use.
package buffer
