// Package model defines the core data structures used throughout
// the gallery-fetch application.
//
// # Task
//
// Task is one unit of work handed over by the page-resolution step: a
// source URL and the file name it should be saved under.
//
//	task := model.NewTask("https://host/a.jpg", "a.jpg")
//	fmt.Println(task.Path("/downloads/gallery")) // Where the image will be saved
//
// # Outcome
//
// Outcome records the result of one pass over a task list:
//
//	outcome := model.Outcome{}
//	outcome.Succeeded = append(outcome.Succeeded, task)
//	fmt.Println(outcome.Done()) // true when nothing failed
package model
