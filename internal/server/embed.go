package server

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed all:dist
var embedFS embed.FS

// StaticFS は画面のファイルを返す。webRoot が空なら埋め込みのものを使う
func StaticFS(webRoot string) (fs.FS, error) {
	if webRoot == "" {
		sub, err := fs.Sub(embedFS, "dist")
		if err != nil {
			return nil, fmt.Errorf("埋め込み静的ファイルシステムの作成に失敗: %w", err)
		}
		return sub, nil
	}

	if _, err := os.Stat(filepath.Join(webRoot, "index.html")); err != nil {
		return nil, fmt.Errorf("web_root に index.html がありません: %w", err)
	}
	return os.DirFS(webRoot), nil
}
