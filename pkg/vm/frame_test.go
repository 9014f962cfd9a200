package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePushPop(t *testing.T) {
	t.Run("LIFO order", func(t *testing.T) {
		frame := NewFrame(0, 10, nil, nil)

		require.NoError(t, frame.Push(IntValue(10)))
		require.NoError(t, frame.Push(IntValue(20)))
		require.NoError(t, frame.Push(IntValue(30)))

		v, err := frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(30), v.Int)

		v, err = frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(20), v.Int)

		v, err = frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(10), v.Int)
	})

	t.Run("push after pop reuses space", func(t *testing.T) {
		frame := NewFrame(0, 10, nil, nil)

		require.NoError(t, frame.Push(IntValue(1)))
		require.NoError(t, frame.Push(IntValue(2)))
		_, err := frame.Pop() // remove 2
		require.NoError(t, err)

		require.NoError(t, frame.Push(IntValue(3)))
		v, err := frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(3), v.Int)

		v, err = frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(1), v.Int)
	})

	t.Run("pop on empty stack underflows", func(t *testing.T) {
		frame := NewFrame(0, 10, nil, nil)
		_, err := frame.Pop()
		require.Error(t, err)
	})

	t.Run("push beyond max_stack overflows", func(t *testing.T) {
		frame := NewFrame(0, 1, nil, nil)
		require.NoError(t, frame.Push(IntValue(1)))
		require.Error(t, frame.Push(IntValue(2)))
	})

	t.Run("negative values", func(t *testing.T) {
		frame := NewFrame(0, 10, nil, nil)

		require.NoError(t, frame.Push(IntValue(-100)))
		v, err := frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(-100), v.Int)
	})
}

func TestFrameLocalVars(t *testing.T) {
	t.Run("basic set and get", func(t *testing.T) {
		frame := NewFrame(4, 10, nil, nil)

		require.NoError(t, frame.SetLocal(0, IntValue(10)))
		require.NoError(t, frame.SetLocal(1, IntValue(20)))
		require.NoError(t, frame.SetLocal(2, IntValue(30)))
		require.NoError(t, frame.SetLocal(3, IntValue(40)))

		for i, want := range []int32{10, 20, 30, 40} {
			v, err := frame.GetLocal(i)
			require.NoError(t, err)
			assert.Equal(t, want, v.Int)
		}
	})

	t.Run("overwrite local variable", func(t *testing.T) {
		frame := NewFrame(4, 10, nil, nil)

		require.NoError(t, frame.SetLocal(0, IntValue(10)))
		require.NoError(t, frame.SetLocal(0, IntValue(99)))

		v, err := frame.GetLocal(0)
		require.NoError(t, err)
		assert.Equal(t, int32(99), v.Int)
	})

	t.Run("out of range local is an error", func(t *testing.T) {
		frame := NewFrame(4, 10, nil, nil)
		_, err := frame.GetLocal(4)
		require.Error(t, err)
		require.Error(t, frame.SetLocal(-1, IntValue(0)))
	})

	t.Run("local vars independent from stack", func(t *testing.T) {
		frame := NewFrame(4, 10, nil, nil)

		require.NoError(t, frame.SetLocal(0, IntValue(10)))
		require.NoError(t, frame.Push(IntValue(99)))

		v, err := frame.GetLocal(0)
		require.NoError(t, err)
		assert.Equal(t, int32(10), v.Int)

		v, err = frame.Pop()
		require.NoError(t, err)
		assert.Equal(t, int32(99), v.Int)
	})
}

func TestFrameOperandReaders(t *testing.T) {
	t.Run("ReadI8 sign-extends", func(t *testing.T) {
		frame := NewFrame(0, 0, []byte{0xFF}, nil)
		assert.Equal(t, int8(-1), frame.ReadI8())
		assert.Equal(t, 1, frame.PC)
	})

	t.Run("ReadU8 stays unsigned", func(t *testing.T) {
		frame := NewFrame(0, 0, []byte{0x80}, nil)
		assert.Equal(t, uint8(0x80), frame.ReadU8())
	})

	t.Run("ReadI16 is big-endian signed", func(t *testing.T) {
		frame := NewFrame(0, 0, []byte{0xFF, 0xFD}, nil) // -3
		assert.Equal(t, int16(-3), frame.ReadI16())
		assert.Equal(t, 2, frame.PC)
	})

	t.Run("ReadI32 is big-endian signed", func(t *testing.T) {
		frame := NewFrame(0, 0, []byte{0xFF, 0xFF, 0xFF, 0xF9}, nil) // -7
		assert.Equal(t, int32(-7), frame.ReadI32())
		assert.Equal(t, 4, frame.PC)
	})
}
