package repository_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/m2tx/chat_relay/internal/model"
	"github.com/m2tx/chat_relay/internal/repository"
)

func TestMemory_GetUnknown_ReturnsEmpty(t *testing.T) {
	r := repository.NewMemoryConversationRepository()

	for _, id := range []string{"", "abc", "does-not-exist"} {
		got := r.Get(id)
		if got == nil {
			t.Fatalf("Get(%q) returned nil, want empty slice", id)
		}
		if len(got) != 0 {
			t.Fatalf("Get(%q) = %+v, want empty", id, got)
		}
	}
}

func TestMemory_SetThenGet(t *testing.T) {
	r := repository.NewMemoryConversationRepository()
	in := []model.Message{model.NewUserMessage("hi"), model.NewAssistantMessage("hello")}

	r.Set("abc", in)
	out := r.Get("abc")

	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("mismatch at %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestMemory_DeleteThenGet_ReturnsEmpty(t *testing.T) {
	r := repository.NewMemoryConversationRepository()
	r.Set("abc", []model.Message{model.NewUserMessage("hi")})

	r.Delete("abc")
	r.Delete("abc")
	r.Delete("never-existed")

	if got := r.Get("abc"); len(got) != 0 {
		t.Fatalf("expected empty history after delete, got %+v", got)
	}
	if r.Len() != 0 {
		t.Fatalf("expected no conversations, got %d", r.Len())
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	r := repository.NewMemoryConversationRepository()
	r.Set("abc", []model.Message{model.NewUserMessage("hi")})

	got := r.Get("abc")
	got[0].Content = "mutated"

	if r.Get("abc")[0].Content != "hi" {
		t.Fatal("mutating the returned slice changed stored history")
	}
}

func TestMemory_Append_PreservesOrder(t *testing.T) {
	r := repository.NewMemoryConversationRepository()

	r.Append("abc", model.NewUserMessage("one"))
	got := r.Append("abc", model.NewAssistantMessage("two"), model.NewUserMessage("three"))

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("message %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestMemory_ConcurrentAppend_LosesNothing(t *testing.T) {
	r := repository.NewMemoryConversationRepository()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Append("shared", model.NewUserMessage(fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	if got := len(r.Get("shared")); got != writers {
		t.Fatalf("got %d messages, want %d", got, writers)
	}
}
