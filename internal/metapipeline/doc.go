// Package metapipeline материализует мета-пайплайны.
//
// Мета-пайплайн содержит задачи генерации (meta_task, generate_tasks,
// generate_flow), которые нельзя выполнить напрямую. Cache превращает
// его в конкретный pipeline через Generator и сохраняет текст в
// <Dir>/<name>.piper. Повторные запуски используют сохранённый файл,
// пока не запрошена регенерация.
//
// Генераторы:
//   - FallbackGenerator — детерминированная заготовка: каждая задача
//     генерации становится cmd, печатающей своё описание
//   - LLMGenerator — конкретный pipeline пишет языковая модель
package metapipeline
