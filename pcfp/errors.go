package pcfp

import (
	"errors"

	"github.com/dr-deep/locelim/smt"
)

var (
	// ErrNotUnfoldable は変数に自分自身と定数以外の値が代入されるときのエラー
	ErrNotUnfoldable = errors.New("variable cannot be unfolded")
	// ErrNonConstantBounds は変数の範囲に未定義の定数が残っているときのエラー
	ErrNonConstantBounds = errors.New("variable bounds are not constant")
	// ErrIneligibleElimination は自己ループがある、初期状態かもしれない、などで消去できないときのエラー
	ErrIneligibleElimination = errors.New("location cannot be eliminated")
	// ErrInvalidUpdate は一つの更新で同じ変数に二回代入するときのエラー
	ErrInvalidUpdate = errors.New("invalid update")
	// ErrOracleUnavailable は充足可能性判定器が使えないときのエラー
	ErrOracleUnavailable = smt.ErrUnavailable
	// ErrUnknownVariable は宣言されていない変数・定数を指定したときのエラー
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnknownLocation はプログラムにないロケーションを指定したときのエラー
	ErrUnknownLocation = errors.New("unknown location")
)
