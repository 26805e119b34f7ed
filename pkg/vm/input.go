package vm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Input supplies values to read instructions.
type Input interface {
	Read(ctx context.Context) (int64, error)
}

// ErrNoInput is returned by scripted inputs once every value has been consumed.
var ErrNoInput = errors.New("no more input")

type valuesInput struct {
	vals []int64
}

// Values returns an Input that yields vals in order.
func Values(vals ...int64) Input { return &valuesInput{vals: append([]int64(nil), vals...)} }

func (in *valuesInput) Read(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(in.vals) == 0 {
		return 0, ErrNoInput
	}
	v := in.vals[0]
	in.vals = in.vals[1:]
	return v, nil
}

type readerInput struct {
	sc     *bufio.Scanner
	prompt io.Writer
}

// NewReaderInput reads one integer per line from r. Blank lines are skipped.
// When prompt is non-nil a "? " prompt is written to it before each read.
func NewReaderInput(r io.Reader, prompt io.Writer) Input {
	return &readerInput{sc: bufio.NewScanner(r), prompt: prompt}
}

func (in *readerInput) Read(ctx context.Context) (int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if in.prompt != nil {
			fmt.Fprint(in.prompt, "? ")
		}
		if !in.sc.Scan() {
			if err := in.sc.Err(); err != nil {
				return 0, err
			}
			return 0, ErrNoInput
		}
		line := strings.TrimSpace(in.sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", line)
		}
		return v, nil
	}
}

type chanInput struct {
	ch <-chan int64
}

// ChanInput receives each value from ch. A closed channel means no more input.
func ChanInput(ch <-chan int64) Input { return chanInput{ch: ch} }

func (in chanInput) Read(ctx context.Context) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case v, ok := <-in.ch:
		if !ok {
			return 0, ErrNoInput
		}
		return v, nil
	}
}
