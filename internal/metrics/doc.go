// Package metrics は負荷リクエストのレイテンシ収集と
// Prometheusコレクタを提供する
//
// Latencyは負荷生成中のリクエスト結果をプロセス内で集計し、
// レポートに載せるスナップショットを返す。Prometheusコレクタは
// 実行回数・項目実行・検証失敗をエクスポートし、監視サーバの
// /metricsエンドポイントから公開される。
package metrics
