package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"quince/internal/config"
	"quince/internal/model"
)

// sseHandler 返回给定分片的 SSE 响应
func sseHandler(chunks []string, withDone bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		if withDone {
			fmt.Fprint(w, "data: [DONE]\n\n")
		}
	}
}

func contentChunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

func TestStreamChatSSE(t *testing.T) {
	Convey("SSE 流式响应解析", t, func() {
		chunks := []string{contentChunk("Hello"), contentChunk(" world"), contentChunk("!")}
		srv := httptest.NewServer(sseHandler(chunks, true))
		defer srv.Close()

		client := NewClient(0)
		pc := config.ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}

		stream, err := client.StreamChat(context.Background(), pc, &model.ChatCompletionRequest{
			Model:    "m1",
			Messages: []model.ChatMessage{{Role: "user", Content: "hi"}},
			Stream:   true,
		})
		So(err, ShouldBeNil)
		defer stream.Close()

		Convey("分片按序返回，[DONE] 终止", func() {
			var contents []string
			var raws [][]byte
			for stream.Next() {
				contents = append(contents, stream.Current().FirstDelta().Content)
				raws = append(raws, stream.Raw())
			}
			So(stream.Err(), ShouldBeNil)
			So(contents, ShouldResemble, []string{"Hello", " world", "!"})

			Convey("Raw 保留传输层的原始 JSON", func() {
				So(string(raws[0]), ShouldEqual, chunks[0])
			})
		})
	})
}

func TestStreamChatSSEComments(t *testing.T) {
	Convey("SSE 注释行和空行被跳过", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keep-alive\n\n")
			fmt.Fprintf(w, "data: %s\n\n", contentChunk("ok"))
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer srv.Close()

		client := NewClient(0)
		stream, err := client.StreamChat(context.Background(), config.ProviderConfig{BaseURL: srv.URL}, &model.ChatCompletionRequest{Model: "m1", Stream: true})
		So(err, ShouldBeNil)
		defer stream.Close()

		So(stream.Next(), ShouldBeTrue)
		So(stream.Current().FirstDelta().Content, ShouldEqual, "ok")
		So(stream.Next(), ShouldBeFalse)
		So(stream.Err(), ShouldBeNil)
	})
}

func TestStreamChatMalformedChunk(t *testing.T) {
	Convey("畸形分片终止流并报错", t, func() {
		srv := httptest.NewServer(sseHandler([]string{`{"id":"c1", not json`}, false))
		defer srv.Close()

		client := NewClient(0)
		stream, err := client.StreamChat(context.Background(), config.ProviderConfig{BaseURL: srv.URL}, &model.ChatCompletionRequest{Model: "m1", Stream: true})
		So(err, ShouldBeNil)
		defer stream.Close()

		So(stream.Next(), ShouldBeFalse)
		So(stream.Err(), ShouldNotBeNil)
	})
}

func TestStreamChatErrorStatus(t *testing.T) {
	Convey("非 200 状态码在开流前返回错误", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client := NewClient(0)
		_, err := client.StreamChat(context.Background(), config.ProviderConfig{BaseURL: srv.URL}, &model.ChatCompletionRequest{Model: "m1", Stream: true})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "503")
	})
}

func TestStreamChatSingleShotFallback(t *testing.T) {
	Convey("JSON 响应降级为单分片流", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"id": "r1",
				"object": "chat.completion",
				"model": "m1",
				"choices": [{
					"index": 0,
					"message": {
						"role": "assistant",
						"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}}]
					},
					"finish_reason": "tool_calls"
				}]
			}`)
		}))
		defer srv.Close()

		client := NewClient(0)
		stream, err := client.StreamChat(context.Background(), config.ProviderConfig{BaseURL: srv.URL}, &model.ChatCompletionRequest{Model: "m1", Stream: true})
		So(err, ShouldBeNil)
		defer stream.Close()

		So(stream.Next(), ShouldBeTrue)
		chunk := stream.Current()
		So(chunk.FinishReason(), ShouldEqual, "tool_calls")
		So(chunk.FirstDelta().ToolCalls, ShouldHaveLength, 1)
		So(chunk.FirstDelta().ToolCalls[0].Function.Name, ShouldEqual, "get_weather")
		So(stream.Next(), ShouldBeFalse)
		So(stream.Err(), ShouldBeNil)
	})
}

func TestStreamChatAuthHeader(t *testing.T) {
	Convey("API key 通过 Bearer 头传递", t, func() {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer srv.Close()

		client := NewClient(0)
		stream, err := client.StreamChat(context.Background(), config.ProviderConfig{BaseURL: srv.URL, APIKey: "sk-test"}, &model.ChatCompletionRequest{Model: "m1", Stream: true})
		So(err, ShouldBeNil)
		stream.Close()

		So(gotAuth, ShouldEqual, "Bearer sk-test")
	})
}
