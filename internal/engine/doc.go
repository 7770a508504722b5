// Package engine вычисляет значения и условия DSL во время выполнения.
//
// Включает:
//   - context.go   — Context, хранилище переменных run (Fork/Merge для Parallel)
//   - evaluator.go — вычисление Value и Condition, интерполяция #{...}
//   - functions.go — реестр функций выражений (upper, default, json, ...)
//
// Неустановленная переменная не является ошибкой: она вычисляется в nil.
// Ошибкой (EvaluationError) являются только неизвестная функция и
// упорядочивающее сравнение несравнимых значений.
package engine
