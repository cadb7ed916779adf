// Package scenario はテストシナリオのモデルとDSLを提供する。
//
// シナリオはクラスタ形状・操作列・カオスイベント・検証設定からなる
// 不変のデータ構造で、2通りの方法で構築できる:
//
//   - Generate: シードからの決定論的な生成。同じシードは常に
//     フィールド単位で同一のシナリオを生成する。
//   - Parse: YAMLドキュメントからの構築。スキーマ外のフィールドは
//     拒否され、レンジ検証はロード時に行われる。
//
// 生成されたシナリオはMarshalDSLでドキュメントに直列化でき、
// 再パースすると元のシナリオと一致する（ラウンドトリップ則）。
//
// # 使用例
//
//	s, err := scenario.Generate(42)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	data, _ := s.MarshalDSL()
//	again, _ := scenario.Parse(data)
//	// again は s と構造的に一致する
package scenario
