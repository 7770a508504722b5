// Package dsl компилирует текст pipeline в AST (domain.Pipeline).
//
// Компиляция проходит в два этапа:
//   - grammar.go — лексер и рекурсивный спуск строят нетипизированное
//     дерево разбора (Node, помеченные правилами Rule)
//   - builder.go — дерево разбора превращается в типизированный AST
//
// Дополнительно:
//   - format.go — печать AST обратно в текст DSL
//   - check.go  — статическая проверка ссылок flow
//
// Пример pipeline:
//
//	pipeline deploy(env = "staging") {
//	    meta { owner: "ops" }
//	    build = cmd(command = "make", output = "artifact")
//	    ping = $"curl -s #{url}" -> pong
//	    flow: build > [ping, build] > (#{env} == "prod" ? ping)
//	}
package dsl
