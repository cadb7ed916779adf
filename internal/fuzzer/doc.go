// Package fuzzer はファズ実行全体を駆動するエンジンを提供する
//
// Engineがシードを所有し、シナリオの構築からクラスタ形成・
// タイムライン実行・状態検証・レポート生成までを1イテレーション
// として繰り返す。失敗したシナリオのレポートには必ず再現コマンド
// （cluster --seed N）が含まれる。
//
// 使用例:
//
//	config := fuzzer.DefaultConfig()
//	config.Seed = 42
//	engine := fuzzer.New(fuzzer.SimHarness(cluster.DefaultSimConfig()), nil, config)
//	reports, err := engine.Run(ctx)
package fuzzer
