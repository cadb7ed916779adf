// Package validator は実行後のクラスタ状態に対して不変条件の
// チェック一式を実行する
//
// スロット被覆・レプリケーション・トポロジ収束・データ整合性・
// シャードログの各チェックは独立に合否を判定し、Reportに集約
// される。収束に依存するチェックは検証タイムアウトまで
// バックオフ付きでポーリングし、決して無期限にブロックしない。
package validator
