// Copyright 2026 imagenhancer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 imagenhancer 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 事件断言: EventKinds / AssertEventKinds / AssertSingleTerminal
  - 异步断言: AssertEventuallyTrue / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockGenerator（可编排结果与错误、记录请求）、
    FailingEmitter（第 N 个事件起返回错误）
  - testutil/fixtures: 各格式测试图像、图像源 httptest 服务器、生成结果样例

# 使用示例

	ctx := testutil.TestContext(t)
	src := fixtures.NewImageServer(t, fixtures.PNG(4, 4), "image/png")
	gen := mocks.NewMockGenerator().WithResults(fixtures.Results(4)...)
	out, err := enh.Enhance(ctx, enhancer.Request{ImageURL: src.URL}, rec)
	testutil.AssertEventKinds(t, rec.Events(), "status", "message", ...)
*/
package testutil
