package activity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func messages(entries []Entry) []string {
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func TestLog_Append(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appends  int
		want     []string
	}{
		{name: "empty", capacity: 3, want: []string{}},
		{name: "partial", capacity: 3, appends: 2, want: []string{"m1", "m0"}},
		{name: "full", capacity: 3, appends: 3, want: []string{"m2", "m1", "m0"}},
		{name: "wrapped", capacity: 3, appends: 7, want: []string{"m6", "m5", "m4"}},
		{name: "default capacity", appends: DefaultCapacity + 1, want: func() []string {
			want := make([]string, 0, DefaultCapacity)
			for i := DefaultCapacity; i > 0; i-- {
				want = append(want, fmt.Sprintf("m%d", i))
			}
			return want
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLog(tt.capacity)
			for i := 0; i < tt.appends; i++ {
				l.Append(TypeApplicationApproved, fmt.Sprintf("m%d", i))
			}
			assert.Equal(t, tt.want, messages(l.List()))
			assert.Equal(t, len(tt.want), l.Len())
		})
	}
}

func TestLog_ListIsACopy(t *testing.T) {
	l := NewLog(2)
	l.Append(TypeApplicationApproved, "a")
	list := l.List()
	list[0].Message = "changed"
	assert.Equal(t, "a", l.List()[0].Message)
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := NewLog(10)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(TypeApplicationRejected, fmt.Sprint(i))
			_ = l.List()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, l.Len())
	assert.Len(t, l.List(), 10)
}
