// Package scheduler запускает pipeline по расписанию.
//
// Расписание объявляется в блоке meta файла pipeline:
//
//	pipeline nightly {
//	    meta { schedule: "0 3 * * *", timezone: "Europe/Moscow" }
//	    ...
//	}
//
// Scheduler читает каталог *.piper, вычисляет NextDueAt и на каждом
// тике выполняет pipeline, время которых подошло, с trigger "schedule".
//
// Структура:
//   - scheduler.go — Scheduler (Load, Tick, Start)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Leader Election:
//
// При нескольких агентах с общей базой Scheduler получает Locker
// (repo.AdvisoryLock поверх pg_try_advisory_lock). Тик выполняет только
// экземпляр, удерживающий блокировку.
package scheduler
