package server

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// apiSpec は埋め込みのOpenAPI定義
type apiSpec struct {
	doc      *openapi3.T
	settings *openapi3.Schema
}

// loadAPISpec はOpenAPI定義を読み込んで検証する
func loadAPISpec() (*apiSpec, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("OpenAPI定義が不正です: %w", err)
	}

	ref, ok := doc.Components.Schemas["CameraSettings"]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("OpenAPI定義に CameraSettings がありません")
	}

	return &apiSpec{doc: doc, settings: ref.Value}, nil
}

// validateSettings は設定変更の入力をスキーマで検証する
func (a *apiSpec) validateSettings(body any) error {
	return a.settings.VisitJSON(body, openapi3.MultiErrors())
}
