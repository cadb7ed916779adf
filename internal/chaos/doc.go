// Package chaos はプロセスレベルの障害注入を実行する
//
// Coordinatorはカオスイベントのターゲットを送達時点の
// クラスタビューから解決し、シグナル送達をノード単位で
// 直列化して実行する。終了させたノードとそのスロット所有は
// 記録され、検証フェーズで未回収スロットの特定に使われる。
package chaos
