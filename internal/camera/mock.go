package camera

import (
	"context"
	"errors"
	"sync"
)

// MockSource はテスト用の FrameSource 実装
//
// 登録したフレームを順番に貸し出し、取得と返却の回数を記録する。
type MockSource struct {
	mu       sync.Mutex
	frames   []Frame
	next     int
	acquired int
	released int
	held     int
	maxHeld  int

	// テスト制御用
	failAt  int
	failErr error
}

// NewMockSource は新しい MockSource を作成する
func NewMockSource(frames ...Frame) *MockSource {
	return &MockSource{frames: frames}
}

// FailAcquireAt は n 回目 (1始まり) 以降の Acquire を失敗させる
func (m *MockSource) FailAcquireAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.New("mock: camera capture failed")
	}
	m.failAt = n
	m.failErr = err
}

// Acquire は次のフレームのコピーを返す
func (m *MockSource) Acquire(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAt > 0 && m.acquired+1 >= m.failAt {
		return nil, m.failErr
	}
	if len(m.frames) == 0 {
		return nil, errors.New("mock: no frames")
	}

	tmpl := m.frames[m.next%len(m.frames)]
	m.next++

	f := tmpl
	f.Data = append([]byte(nil), tmpl.Data...)
	m.acquired++
	m.held++
	if m.held > m.maxHeld {
		m.maxHeld = m.held
	}
	return &f, nil
}

// Release は返却を記録する
func (m *MockSource) Release(f *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	m.held--
}

// Acquired は成功した Acquire の回数を返す
func (m *MockSource) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// Released は Release の回数を返す
func (m *MockSource) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// MaxHeld は同時に貸し出していたフレーム数の最大値を返す
func (m *MockSource) MaxHeld() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxHeld
}

// MockEncoder はテスト用の Encoder 実装
type MockEncoder struct {
	mu      sync.Mutex
	inner   Encoder
	encoded int
	freed   int
	lengths []int

	// テスト制御用
	failAt int
}

// NewMockEncoder は inner に処理を委譲する MockEncoder を作成する
func NewMockEncoder(inner Encoder) *MockEncoder {
	return &MockEncoder{inner: inner}
}

// FailEncodeAt は n 回目 (1始まり) 以降の Encode を失敗させる
func (m *MockEncoder) FailEncodeAt(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
}

// Encode は inner に委譲し、回数と出力長を記録する
func (m *MockEncoder) Encode(f *Frame, quality int) ([]byte, error) {
	m.mu.Lock()
	call := m.encoded + 1
	fail := m.failAt > 0 && call >= m.failAt
	m.mu.Unlock()

	if fail {
		return nil, errors.New("mock: JPEG compression failed")
	}

	buf, err := m.inner.Encode(f, quality)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.encoded++
	m.lengths = append(m.lengths, len(buf))
	m.mu.Unlock()
	return buf, nil
}

// Free は inner に委譲し、回数を記録する
func (m *MockEncoder) Free(buf []byte) {
	m.mu.Lock()
	m.freed++
	m.mu.Unlock()
	m.inner.Free(buf)
}

// Counts は成功した Encode と Free の回数を返す
func (m *MockEncoder) Counts() (encoded, freed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encoded, m.freed
}

// Lengths は Encode が返したバッファ長の履歴を返す
func (m *MockEncoder) Lengths() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.lengths...)
}
