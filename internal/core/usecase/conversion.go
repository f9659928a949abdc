package usecase

import (
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/core/entity"
	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/apperr"
)

type ConversionKind int

const (
	ConversionConverted ConversionKind = iota
	// ConversionSkipped marks a benign empty envelope; nothing is dispatched.
	ConversionSkipped
	// ConversionFailed marks a malformed payload that must surface.
	ConversionFailed
)

func (k ConversionKind) String() string {
	switch k {
	case ConversionConverted:
		return "converted"
	case ConversionSkipped:
		return "skipped"
	case ConversionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conversion is the outcome of normalizing one raw block.
type Conversion struct {
	Kind  ConversionKind
	Block *entity.Block
	Err   error
}

func Converted(block *entity.Block) Conversion {
	if block == nil {
		return Skipped()
	}
	return Conversion{Kind: ConversionConverted, Block: block}
}

func Skipped() Conversion {
	return Conversion{Kind: ConversionSkipped}
}

func Failed(err error) Conversion {
	if err == nil {
		err = apperr.NewBlockConvertErr("block conversion failed", nil)
	}
	return Conversion{Kind: ConversionFailed, Err: err}
}
