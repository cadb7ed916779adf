// Package timeline は操作とカオスイベントを単一の実行可能な
// タイムラインへ解決し、協調指示を守って実行する
//
// Resolveが各項目の起動オフセットと依存関係を確定し、
// Schedulerが全項目を並行タスクとして単一の単調時計に対して
// 起動する。before_operationカオスの完了はアンカー操作の起動に
// 厳密に先行し、after_operationカオスはアンカー完了の記録後に
// 起動する。during_operationカオスはアンカーと同一時刻に起動し、
// それ以上の相互順序は持たない。
package timeline
