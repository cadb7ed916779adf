// Package cluster はテスト対象クラスタへの操作面を提供する
//
// Controllerインタフェースがクラスタ能力（形成・シグナル送出・
// スナップショット取得・フェイルオーバー起動）を抽象化し、
// SimClusterがそのインメモリ実装を提供する。
// スロット割り当て・レプリケーション・故障検出ログを備えた
// シミュレーションにより、実プロセスなしでスケジューラと
// バリデータの全経路を検証できる。
//
// 使用例:
//
//	sim := cluster.NewSim(cluster.DefaultSimConfig())
//	if err := sim.Form(ctx, spec); err != nil {
//		log.Fatal(err)
//	}
//	view, _ := cluster.Collect(ctx, sim)
package cluster
