// Package mocks provides shared fakes for tests.
//
//	mockLLM := mocks.NewMockLLMClient("test-model")
//	mockLLM.RespondWith("ALL_CLEAR")
//
//	editor := mocks.NewFakeEditor()
//	editor.SetActive(host.StaticBuffer{Path: "file:///a.py", Content: src, OnDisk: true})
//
//	panels := mocks.NewFakePanelHost()
//	// ... drive the session ...
//	surface := panels.Last()
//	surface.Send(`{"command":"yes"}`)
//
// Available fakes:
//
//   - MockLLMClient: llm.LLMClient with scripted responses and a call log
//   - FakeEditor: host.Editor with settable buffers and a Save trigger
//   - FakePanelHost / FakeSurface: host.PanelHost recording every posted message
package mocks
