package tools

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"quince/internal/model"
)

func TestRegistryEnabled(t *testing.T) {
	Convey("工具白名单", t, func() {
		r := NewRegistry([]string{"llama3.1", "gpt-4o"})
		RegisterBuiltins(r)

		Convey("白名单内的模型启用工具", func() {
			So(r.Enabled("llama3.1"), ShouldBeTrue)
			So(r.Enabled("gpt-4o"), ShouldBeTrue)
		})

		Convey("白名单外的模型不启用", func() {
			So(r.Enabled("mistral"), ShouldBeFalse)
		})

		Convey("没有注册任何工具时全部不启用", func() {
			empty := NewRegistry([]string{"llama3.1"})
			So(empty.Enabled("llama3.1"), ShouldBeFalse)
		})
	})
}

func TestRegistryDeclarations(t *testing.T) {
	Convey("工具声明按注册顺序返回", t, func() {
		r := NewRegistry(nil)
		RegisterBuiltins(r)

		decls := r.Declarations()
		So(decls, ShouldHaveLength, 2)
		So(decls[0].Function.Name, ShouldEqual, "add_two_numbers")
		So(decls[1].Function.Name, ShouldEqual, "get_weather")
		So(decls[0].Type, ShouldEqual, "function")
	})
}

func TestRegistryInvoke(t *testing.T) {
	Convey("工具执行", t, func() {
		r := NewRegistry(nil)
		RegisterBuiltins(r)
		ctx := context.Background()

		Convey("add_two_numbers 返回相加结果", func() {
			result, err := r.Invoke(ctx, "add_two_numbers", `{"a": 2, "b": 3}`)
			So(err, ShouldBeNil)
			So(result, ShouldEqual, "The result of adding 2 and 3 is: 5")
		})

		Convey("get_weather 返回城市天气", func() {
			result, err := r.Invoke(ctx, "get_weather", `{"location": "Oslo"}`)
			So(err, ShouldBeNil)
			So(result, ShouldContainSubstring, "Oslo")
		})

		Convey("未注册的工具返回 ErrToolNotFound", func() {
			_, err := r.Invoke(ctx, "foo", `{}`)
			So(errors.Is(err, ErrToolNotFound), ShouldBeTrue)
		})

		Convey("参数不是合法 JSON 时返回 ErrInvocationFailed", func() {
			_, err := r.Invoke(ctx, "add_two_numbers", `{"a": `)
			So(errors.Is(err, ErrInvocationFailed), ShouldBeTrue)
		})

		Convey("缺少参数时返回 ErrInvocationFailed", func() {
			_, err := r.Invoke(ctx, "add_two_numbers", `{"a": 2}`)
			So(errors.Is(err, ErrInvocationFailed), ShouldBeTrue)
		})

		Convey("工具 panic 被捕获为 ErrInvocationFailed", func() {
			r.Register(Tool{
				Declaration: model.ToolDeclaration{
					Type:     "function",
					Function: model.ToolFunction{Name: "panics"},
				},
				Call: func(ctx context.Context, args map[string]any) (string, error) {
					panic("boom")
				},
			})
			_, err := r.Invoke(ctx, "panics", `{}`)
			So(errors.Is(err, ErrInvocationFailed), ShouldBeTrue)
		})
	})
}
